// Package wordpiece implements WordPiece training and encoding. Training
// reuses the shared merge engine but ranks candidates by likelihood gain,
// score = freq(pair) / (freq(first) * freq(second)), over symbol frequencies
// maintained incrementally as merges land. Encoding ignores the learned rule
// order entirely and greedily longest-matches each span against a trie of the
// final vocabulary.
package wordpiece

import (
	"bytes"
	"unicode/utf8"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/segtok/segtok/corpus"
	"github.com/segtok/segtok/internal/merge"
	"github.com/segtok/segtok/internal/symbols"
	"github.com/segtok/segtok/internal/trie"
	"github.com/segtok/segtok/pretokenize"
	"github.com/segtok/segtok/tokenizers/api"
)

// Tokenizer is a WordPiece tokenizer. Construct with New, then Train or
// Restore before encoding.
type Tokenizer struct {
	splitter api.Splitter
	pattern  string
	custom   bool

	table    *symbols.Table
	rules    []api.Rule
	specials []int
	unkID    int
	markerID int
	matcher  *trie.Trie
	trained  bool
}

var _ api.Tokenizer = (*Tokenizer)(nil)

// New returns an untrained WordPiece tokenizer.
func New() *Tokenizer {
	return &Tokenizer{
		splitter: pretokenize.Default(),
		pattern:  pretokenize.GPT4Pattern,
		unkID:    -1,
		markerID: -1,
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
func (t *Tokenizer) Algorithm() api.Algorithm { return api.WordPiece }

// likelihoodScorer ranks a pair by how much merging it should improve corpus
// likelihood, using the mutual-information-style ratio count/(freqA*freqB).
// Symbol frequencies move with every merge, so earlier queue entries go stale
// and the engine re-derives them; Score stays pure in the frequency state.
type likelihoodScorer struct {
	freq      []int64
	table     *symbols.Table
	lastPair  merge.Pair
	lastScore float64
	hasLast   bool
}

func (s *likelihoodScorer) Init(words []merge.Word, table *symbols.Table) {
	s.table = table
	s.freq = make([]int64, table.Len())
	for _, w := range words {
		for _, id := range w.IDs {
			s.freq[id] += w.Count
		}
	}
}

func (s *likelihoodScorer) Score(p merge.Pair, count int64) float64 {
	score := float64(count) / (float64(s.freq[p.A]) * float64(s.freq[p.B]))
	s.lastPair, s.lastScore, s.hasLast = p, score, true
	return score
}

func (s *likelihoodScorer) Applied(p merge.Pair, newID int, occurrences int64) {
	s.freq[p.A] -= occurrences
	s.freq[p.B] -= occurrences // p.A == p.B gives up two symbols per merge
	for newID >= len(s.freq) {
		s.freq = append(s.freq, 0)
	}
	s.freq[newID] += occurrences
	if s.hasLast && s.lastPair == p {
		// The engine scored p immediately before applying it; record that
		// gain as the new entry's score.
		s.table.SetScore(newID, s.lastScore)
	}
}

// Train implements api.Tokenizer.
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

	table := symbols.SortedAlphabet(spans)
	markerID, _ := table.AddString(api.EndOfWordMarker)
	words := merge.CharWords(spans, counts, table, markerID)

	alphabet := table.Len()
	if cfg.TargetVocabSize <= alphabet+len(cfg.SpecialTokens) {
		return nil, errors.Wrapf(api.ErrVocabTargetTooSmall,
			"target %d must exceed alphabet %d plus %d special tokens",
			cfg.TargetVocabSize, alphabet, len(cfg.SpecialTokens))
	}

	lengths := make([]int, table.Len())
	for i := range lengths {
		lengths[i] = 1
	}
	engRes := merge.Run(words, table, lengths, &likelihoodScorer{}, merge.Config{
		TargetLen:    cfg.TargetVocabSize - len(cfg.SpecialTokens),
		MinFrequency: int64(cfg.MinPairFrequency),
		MaxLen:       cfg.MaxSubwordLength,
		Workers:      cfg.Workers,
	})

	specials, skipped := symbols.InjectSpecials(table, cfg.SpecialTokens)
	for _, tok := range skipped {
		klog.Warningf("special token %q collides with an existing entry; keeping the earlier entry", tok)
	}
	unkID := -1
	if cfg.UnknownToken != "" {
		unkID, _ = table.IDString(cfg.UnknownToken)
	}

	t.table = table
	t.rules = engRes.Rules
	t.specials = specials
	t.unkID = unkID
	t.markerID = markerID
	t.matcher = buildMatcher(table, specials)
	t.splitter = split
	t.pattern = pattern
	t.trained = true

	klog.V(1).Infof("WordPiece training done: vocab %d, rules %d, exhausted %v",
		table.Len(), len(engRes.Rules), engRes.Exhausted)
	return &api.TrainResult{
		VocabSize: table.Len(),
		Rules:     len(engRes.Rules),
		Rounds:    engRes.Rounds,
		Exhausted: engRes.Exhausted,
	}, nil
}

func (t *Tokenizer) resolveSplitter(cfg api.TrainConfig) (api.Splitter, string, error) {
	if t.custom {
		return t.splitter, "", nil
	}
	return pretokenize.FromConfig(cfg.PretokenizePattern)
}

// buildMatcher indexes every non-special entry. Special tokens are control
// markers and must never match inside running text.
func buildMatcher(table *symbols.Table, specials []int) *trie.Trie {
	skip := make(map[int]struct{}, len(specials))
	for _, id := range specials {
		skip[id] = struct{}{}
	}
	m := trie.New()
	for id := 0; id < table.Len(); id++ {
		if _, ok := skip[id]; ok {
			continue
		}
		content, _ := table.Content(id)
		m.Insert(content, id)
	}
	return m
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
		ids, err := t.matchSpan(span)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

// matchSpan greedily takes the longest vocabulary entry at each position of
// span plus the end-of-word marker. A position with no match emits the
// unknown id and resyncs one rune later.
func (t *Tokenizer) matchSpan(span string) ([]int, error) {
	data := make([]byte, 0, len(span)+len(api.EndOfWordMarker))
	data = append(data, span...)
	data = append(data, api.EndOfWordMarker...)

	var ids []int
	for i := 0; i < len(data); {
		n, id := t.matcher.LongestMatch(data[i:])
		if n == 0 {
			if t.unkID < 0 {
				r, _ := utf8.DecodeRune(data[i:])
				return nil, errors.Wrapf(api.ErrUnknownSymbol, "character %q", r)
			}
			ids = append(ids, t.unkID)
			_, size := utf8.DecodeRune(data[i:])
			i += size
			continue
		}
		ids = append(ids, id)
		i += n
	}
	return ids, nil
}

// Decode implements api.Tokenizer.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	if !t.trained {
		return "", errors.WithStack(api.ErrNotTrained)
	}
	marker := []byte(api.EndOfWordMarker)
	var buf []byte
	for _, id := range ids {
		content, ok := t.table.Content(id)
		if !ok {
			return "", errors.Wrapf(api.ErrUnknownID, "id %d", id)
		}
		if t.markerID >= 0 {
			content = bytes.TrimSuffix(content, marker)
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

// Export implements api.Tokenizer. Entry scores carry the likelihood gain
// each merge was applied at; base symbols and specials stay unscored.
func (t *Tokenizer) Export() *api.Model {
	if !t.trained {
		return nil
	}
	m := &api.Model{
		Algorithm:   api.WordPiece,
		Pattern:     t.pattern,
		Entries:     make([]api.Entry, t.table.Len()),
		Rules:       append([]api.Rule(nil), t.rules...),
		SpecialIDs:  append([]int(nil), t.specials...),
		UnknownID:   t.unkID,
		EndOfWordID: t.markerID,
	}
	for id := 0; id < t.table.Len(); id++ {
		content, _ := t.table.Content(id)
		m.Entries[id] = api.Entry{Content: string(content), Score: t.table.Score(id)}
	}
	return m
}

// Restore rebuilds a trained tokenizer from an exported model.
func Restore(m *api.Model) (*Tokenizer, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Algorithm != api.WordPiece {
		return nil, errors.Wrapf(api.ErrInvalidModel, "model algorithm %s is not WordPiece", m.Algorithm)
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
	t.rules = append([]api.Rule(nil), m.Rules...)
	t.specials = append([]int(nil), m.SpecialIDs...)
	t.unkID = m.UnknownID
	t.markerID = m.EndOfWordID
	t.matcher = buildMatcher(table, t.specials)
	t.trained = true
	return t, nil
}
