// Package unigram implements the Unigram language-model tokenizer. Training
// seeds a large candidate vocabulary from corpus substrings, then alternates
// EM passes (Viterbi-segment every span, rescore every piece by usage) with
// pruning the pieces whose removal costs the least likelihood, until the
// vocabulary fits the target. Encoding runs the same Viterbi search over the
// final scored vocabulary; there is no merge rule list and no end-of-word
// marker.
package unigram

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/segtok/segtok/corpus"
	"github.com/segtok/segtok/internal/parallel"
	"github.com/segtok/segtok/internal/symbols"
	"github.com/segtok/segtok/internal/trie"
	"github.com/segtok/segtok/pretokenize"
	"github.com/segtok/segtok/tokenizers/api"
)

const (
	// maxSeeds caps the candidate vocabulary after seeding.
	maxSeeds = 1_000_000
	// emPasses is the number of E/M passes per prune round.
	emPasses = 2
	// pruneDivisor: each round removes at most 1/pruneDivisor of the alive
	// multi-character pieces.
	pruneDivisor = 4
	// unkPenalty places unknown bridges and unused coverage symbols this far
	// below the worst scored entry.
	unkPenalty = 10.0
)

// piece is one candidate vocabulary entry during training. Protected pieces
// are the single-rune coverage symbols and are never pruned.
type piece struct {
	content   string
	score     float64
	usage     int64
	alive     bool
	protected bool
}

// Tokenizer is a Unigram tokenizer. Construct with New, then Train or Restore
// before encoding.
type Tokenizer struct {
	splitter api.Splitter
	pattern  string
	custom   bool

	table    *symbols.Table
	specials []int
	unkID    int
	lat      *lattice
	trained  bool
}

var _ api.Tokenizer = (*Tokenizer)(nil)

// New returns an untrained Unigram tokenizer.
func New() *Tokenizer {
	return &Tokenizer{
		splitter: pretokenize.Default(),
		pattern:  pretokenize.GPT4Pattern,
		unkID:    -1,
	}
}

// WithSplitter installs a custom span splitter in place of the default
// pattern. Models trained with a custom splitter persist no pattern and are
// restored with the default one.
func (t *Tokenizer) WithSplitter(s api.Splitter) *Tokenizer {
	t.splitter = s
	t.pattern = ""
	t.custom = true
	return t
}

// Algorithm implements api.Tokenizer.
func (t *Tokenizer) Algorithm() api.Algorithm { return api.Unigram }

// Train implements api.Tokenizer. MinPairFrequency does not apply to this
// algorithm and is ignored.
func (t *Tokenizer) Train(docs []string, cfg api.TrainConfig) (*api.TrainResult, error) {
	if t.trained {
		return nil, errors.WithStack(api.ErrAlreadyTrained)
	}
	cfg = cfg.WithDefaults()

	for i, doc := range docs {
		if !utf8.ValidString(doc) {
			return nil, errors.Wrapf(api.ErrInvalidUTF8, "document %d", i)
		}
	}
	split, pattern, err := t.resolveSplitter(cfg)
	if err != nil {
		return nil, err
	}
	spans, counts, err := corpus.CountSpans(corpus.FromSlice(docs), split, cfg.Workers)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, errors.Wrap(api.ErrEmptyCorpus, "no spans after pretokenization")
	}

	pieces, nSingles := seedPieces(spans, counts, cfg.MaxSubwordLength)
	if cfg.TargetVocabSize <= nSingles+len(cfg.SpecialTokens) {
		return nil, errors.Wrapf(api.ErrVocabTargetTooSmall,
			"target %d must exceed the %d single-character symbols plus %d special tokens",
			cfg.TargetVocabSize, nSingles, len(cfg.SpecialTokens))
	}
	klog.V(1).Infof("unigram seeding: %d candidates (%d single-character)", len(pieces), nSingles)

	target := cfg.TargetVocabSize
	rounds := 0
	exhausted := false
	for {
		for pass := 0; pass < emPasses; pass++ {
			if err := emPass(spans, counts, pieces, cfg.Workers); err != nil {
				return nil, err
			}
		}
		alive, aliveMulti := countAlive(pieces)
		if alive+len(cfg.SpecialTokens) <= target {
			break
		}
		if aliveMulti == 0 {
			exhausted = true
			break
		}
		pruned := prune(pieces, alive+len(cfg.SpecialTokens)-target)
		rounds++
		klog.V(1).Infof("unigram round %d: pruned %d, %d alive", rounds, pruned, alive-pruned)
	}

	alive, _ := countAlive(pieces)
	if alive+len(cfg.SpecialTokens) < target {
		// Zero-usage drops undershot the target; nothing is left to keep.
		exhausted = true
	}

	table := finalize(pieces)
	specials, skipped := symbols.InjectSpecials(table, cfg.SpecialTokens)
	for _, tok := range skipped {
		klog.Warningf("special token %q collides with an existing entry; keeping the earlier entry", tok)
	}
	unkID := -1
	if cfg.UnknownToken != "" {
		unkID, _ = table.IDString(cfg.UnknownToken)
	}

	t.table = table
	t.specials = specials
	t.unkID = unkID
	t.lat = buildLattice(table, specials, unkID)
	t.splitter = split
	t.pattern = pattern
	t.trained = true

	klog.V(1).Infof("unigram training done: vocab %d, rounds %d, exhausted %v",
		table.Len(), rounds, exhausted)
	return &api.TrainResult{
		VocabSize: table.Len(),
		Rounds:    rounds,
		Exhausted: exhausted,
	}, nil
}

func (t *Tokenizer) resolveSplitter(cfg api.TrainConfig) (api.Splitter, string, error) {
	if t.custom {
		return t.splitter, "", nil
	}
	return pretokenize.FromConfig(cfg.PretokenizePattern)
}

// seedPieces builds the candidate set: every substring of every span up to
// maxLen runes, scored by log relative frequency. Single-rune substrings are
// kept unconditionally, in first-appearance order, and marked protected; the
// rest are capped at the most frequent maxSeeds, ties broken by content.
func seedPieces(spans []string, counts []int64, maxLen int) ([]piece, int) {
	freqs := make(map[string]int64)
	seenSingle := make(map[string]struct{})
	var singles []string
	for i, s := range spans {
		count := counts[i]
		starts := make([]int, 0, len(s)+1)
		for off := range s {
			starts = append(starts, off)
		}
		starts = append(starts, len(s))
		for a := 0; a < len(starts)-1; a++ {
			limit := a + maxLen
			if limit > len(starts)-1 {
				limit = len(starts) - 1
			}
			for b := a + 1; b <= limit; b++ {
				sub := s[starts[a]:starts[b]]
				freqs[sub] += count
				if b == a+1 {
					if _, ok := seenSingle[sub]; !ok {
						seenSingle[sub] = struct{}{}
						singles = append(singles, sub)
					}
				}
			}
		}
	}

	multis := make([]string, 0, len(freqs)-len(singles))
	for sub := range freqs {
		if _, ok := seenSingle[sub]; !ok {
			multis = append(multis, sub)
		}
	}
	sort.Slice(multis, func(a, b int) bool {
		fa, fb := freqs[multis[a]], freqs[multis[b]]
		if fa != fb {
			return fa > fb
		}
		return multis[a] < multis[b]
	})
	if keep := maxSeeds - len(singles); len(multis) > keep {
		multis = multis[:keep]
	}

	var total int64
	for _, s := range singles {
		total += freqs[s]
	}
	for _, s := range multis {
		total += freqs[s]
	}
	logTotal := math.Log(float64(total))
	pieces := make([]piece, 0, len(singles)+len(multis))
	for _, s := range singles {
		pieces = append(pieces, piece{
			content:   s,
			score:     math.Log(float64(freqs[s])) - logTotal,
			alive:     true,
			protected: true,
		})
	}
	for _, s := range multis {
		pieces = append(pieces, piece{
			content: s,
			score:   math.Log(float64(freqs[s])) - logTotal,
			alive:   true,
		})
	}
	return pieces, len(singles)
}

// pieceMatcher indexes the alive pieces by working index.
func pieceMatcher(pieces []piece) *trie.Trie {
	m := trie.New()
	for i := range pieces {
		if pieces[i].alive {
			m.Insert([]byte(pieces[i].content), i)
		}
	}
	return m
}

// emPass runs one E-step and one M-step. The E-step Viterbi-segments every
// span in parallel over the fixed chunk grid; usage totals are integers, so
// accumulation order cannot change the result. The M-step rescores every used
// piece to log(usage/total), drops zero-usage multi-character pieces, and
// floors unused coverage symbols so every corpus character stays
// representable.
func emPass(spans []string, counts []int64, pieces []piece, workers int) error {
	lat := &lattice{
		matcher: pieceMatcher(pieces),
		score:   func(id int) float64 { return pieces[id].score },
		content: func(id int) string { return pieces[id].content },
		unkID:   -1,
	}

	for i := range pieces {
		pieces[i].usage = 0
	}
	type partial struct {
		usage map[int]int64
		err   error
	}
	parts := make([]partial, parallel.NumChunks(len(spans)))
	parallel.ForEachChunk(len(spans), workers, func(chunk, start, end int) {
		usage := make(map[int]int64)
		for i := start; i < end; i++ {
			ids, err := lat.segment([]byte(spans[i]))
			if err != nil {
				parts[chunk] = partial{err: errors.Wrapf(err, "segmenting span %d", i)}
				return
			}
			for _, id := range ids {
				usage[id] += counts[i]
			}
		}
		parts[chunk] = partial{usage: usage}
	})
	for _, p := range parts {
		if p.err != nil {
			return p.err
		}
		for id, u := range p.usage {
			pieces[id].usage += u
		}
	}

	var total int64
	for i := range pieces {
		if pieces[i].alive {
			total += pieces[i].usage
		}
	}
	logTotal := math.Log(float64(total))
	minScore := 0.0
	scored := false
	for i := range pieces {
		p := &pieces[i]
		if !p.alive {
			continue
		}
		if p.usage == 0 {
			if !p.protected {
				p.alive = false
			}
			continue
		}
		p.score = math.Log(float64(p.usage)) - logTotal
		if !scored || p.score < minScore {
			minScore, scored = p.score, true
		}
	}
	for i := range pieces {
		p := &pieces[i]
		if p.alive && p.usage == 0 {
			p.score = minScore - unkPenalty
		}
	}
	return nil
}

func countAlive(pieces []piece) (alive, aliveMulti int) {
	for i := range pieces {
		if !pieces[i].alive {
			continue
		}
		alive++
		if !pieces[i].protected {
			aliveMulti++
		}
	}
	return alive, aliveMulti
}

// prune kills the lowest-loss multi-character pieces, where loss approximates
// the likelihood hit of rerouting a piece's occurrences through its single
// characters: usage * (score - sum of single-character scores). At most
// 1/pruneDivisor of the alive multi-character pieces go per round, and never
// more than needed to reach the target. Returns how many were pruned.
func prune(pieces []piece, need int) int {
	singleScore := make(map[rune]float64)
	for i := range pieces {
		if pieces[i].alive && pieces[i].protected {
			r, _ := utf8.DecodeRuneInString(pieces[i].content)
			singleScore[r] = pieces[i].score
		}
	}

	type cand struct {
		idx  int
		loss float64
	}
	var cands []cand
	for i := range pieces {
		p := &pieces[i]
		if !p.alive || p.protected {
			continue
		}
		var chars float64
		for _, r := range p.content {
			chars += singleScore[r]
		}
		cands = append(cands, cand{idx: i, loss: float64(p.usage) * (p.score - chars)})
	}

	batch := len(cands) / pruneDivisor
	if batch < 1 {
		batch = 1
	}
	remove := min(batch, need, len(cands))
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].loss != cands[b].loss {
			return cands[a].loss < cands[b].loss
		}
		return pieces[cands[a].idx].content < pieces[cands[b].idx].content
	})
	for _, c := range cands[:remove] {
		pieces[c.idx].alive = false
	}
	return remove
}

// finalize lays out the dense table: protected singles in first-appearance
// order, surviving multi-character pieces by score descending (ties by
// content), each keeping its final log-probability.
func finalize(pieces []piece) *symbols.Table {
	table := symbols.NewTable()
	for i := range pieces {
		if pieces[i].alive && pieces[i].protected {
			id, _ := table.AddString(pieces[i].content)
			table.SetScore(id, pieces[i].score)
		}
	}
	var multis []int
	for i := range pieces {
		if pieces[i].alive && !pieces[i].protected {
			multis = append(multis, i)
		}
	}
	sort.Slice(multis, func(a, b int) bool {
		pa, pb := pieces[multis[a]], pieces[multis[b]]
		if pa.score != pb.score {
			return pa.score > pb.score
		}
		return pa.content < pb.content
	})
	for _, i := range multis {
		id, _ := table.AddString(pieces[i].content)
		table.SetScore(id, pieces[i].score)
	}
	return table
}

// buildLattice indexes every non-special entry and anchors the unknown bridge
// unkPenalty below the worst entry score.
func buildLattice(table *symbols.Table, specials []int, unkID int) *lattice {
	skip := make(map[int]struct{}, len(specials))
	for _, id := range specials {
		skip[id] = struct{}{}
	}
	m := trie.New()
	minScore := 0.0
	scored := false
	for id := 0; id < table.Len(); id++ {
		if _, ok := skip[id]; ok {
			continue
		}
		content, _ := table.Content(id)
		m.Insert(content, id)
		if s := table.Score(id); !scored || s < minScore {
			minScore, scored = s, true
		}
	}
	return &lattice{
		matcher: m,
		score:   table.Score,
		content: func(id int) string {
			c, _ := table.Content(id)
			return string(c)
		},
		unkID:    unkID,
		unkScore: minScore - unkPenalty,
	}
}

// Encode implements api.Tokenizer.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	if !t.trained {
		return nil, errors.WithStack(api.ErrNotTrained)
	}
	if !utf8.ValidString(text) {
		return nil, errors.WithStack(api.ErrInvalidUTF8)
	}
	spans, err := t.splitter.Split(text)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, span := range spans {
		ids, err := t.lat.segment([]byte(span))
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

// Decode implements api.Tokenizer. Contents concatenate as-is; an unknown id
// contributes the unknown token's text.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	if !t.trained {
		return "", errors.WithStack(api.ErrNotTrained)
	}
	var buf []byte
	for _, id := range ids {
		content, ok := t.table.Content(id)
		if !ok {
			return "", errors.Wrapf(api.ErrUnknownID, "id %d", id)
		}
		buf = append(buf, content...)
	}
	return string(buf), nil
}

// VocabSize implements api.Tokenizer.
func (t *Tokenizer) VocabSize() int {
	if t.table == nil {
		return 0
	}
	return t.table.Len()
}

// TokenToID implements api.Tokenizer.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if t.table == nil {
		return 0, false
	}
	return t.table.IDString(token)
}

// IDToToken implements api.Tokenizer.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	if t.table == nil {
		return "", false
	}
	content, ok := t.table.Content(id)
	if !ok {
		return "", false
	}
	return string(content), true
}

// Export implements api.Tokenizer. Entry scores are the final
// log-probabilities; specials stay unscored.
func (t *Tokenizer) Export() *api.Model {
	if !t.trained {
		return nil
	}
	m := &api.Model{
		Algorithm:   api.Unigram,
		Pattern:     t.pattern,
		Entries:     make([]api.Entry, t.table.Len()),
		SpecialIDs:  append([]int(nil), t.specials...),
		UnknownID:   t.unkID,
		EndOfWordID: -1,
	}
	for id := 0; id < t.table.Len(); id++ {
		content, _ := t.table.Content(id)
		m.Entries[id] = api.Entry{Content: string(content), Score: t.table.Score(id)}
	}
	return m
}

// Restore rebuilds a trained tokenizer from an exported model. This is also
// the path for hand-built vocabularies with chosen scores.
func Restore(m *api.Model) (*Tokenizer, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Algorithm != api.Unigram {
		return nil, errors.Wrapf(api.ErrInvalidModel, "model algorithm %s is not Unigram", m.Algorithm)
	}
	t := New()
	table := symbols.NewTable()
	for id, e := range m.Entries {
		table.AddString(e.Content)
		table.SetScore(id, e.Score)
	}
	t.pattern = m.Pattern // empty stays empty: the model was trained with a custom splitter
	if m.Pattern != "" {
		p, err := pretokenize.NewPattern(m.Pattern)
		if err != nil {
			return nil, err
		}
		t.splitter = p
	}
	t.table = table
	t.specials = append([]int(nil), m.SpecialIDs...)
	t.unkID = m.UnknownID
	t.lat = buildLattice(table, t.specials, t.unkID)
	t.trained = true
	return t, nil
}
