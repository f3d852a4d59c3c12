// Package bpe implements byte-pair encoding, both character-level (with an
// end-of-word marker per word) and byte-level (256-byte alphabet, no unknown
// tokens ever needed). Training learns an ordered merge rule list; encoding
// replays the rules in learned order.
package bpe

import (
	"bytes"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/segtok/segtok/corpus"
	"github.com/segtok/segtok/internal/bytemap"
	"github.com/segtok/segtok/internal/merge"
	"github.com/segtok/segtok/internal/symbols"
	"github.com/segtok/segtok/pretokenize"
	"github.com/segtok/segtok/tokenizers/api"
)

// DefaultCacheSize bounds the per-span encode cache.
const DefaultCacheSize = 8192

// Tokenizer is a BPE tokenizer in one of its two modes. Zero values are not
// usable; construct with New or NewByteLevel.
type Tokenizer struct {
	byteLevel bool
	splitter  api.Splitter
	pattern   string // persisted pattern; empty when a custom splitter is set
	custom    bool
	cacheSize int

	table    *symbols.Table
	rules    []api.Rule
	ranks    map[merge.Pair]int
	specials []int
	unkID    int
	markerID int
	trained  bool
	cache    *lru.Cache[string, []int]
}

var _ api.Tokenizer = (*Tokenizer)(nil)

// New returns a character-level BPE tokenizer. It must be trained (or
// restored from a model) before use.
func New() *Tokenizer {
	return &Tokenizer{
		splitter:  pretokenize.Default(),
		pattern:   pretokenize.GPT4Pattern,
		cacheSize: DefaultCacheSize,
		unkID:     -1,
		markerID:  -1,
	}
}

// NewByteLevel returns a byte-level BPE tokenizer. The 256-byte alphabet is
// seeded immediately, so encoding works before any training.
func NewByteLevel() *Tokenizer {
	t := New()
	t.byteLevel = true
	t.table = byteAlphabet()
	t.cache = newCache(t.cacheSize)
	return t
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

// WithCacheSize resizes the per-span encode cache. Zero disables caching.
func (t *Tokenizer) WithCacheSize(n int) *Tokenizer {
	t.cacheSize = n
	t.cache = newCache(n)
	return t
}

// Algorithm implements api.Tokenizer.
func (t *Tokenizer) Algorithm() api.Algorithm {
	if t.byteLevel {
		return api.ByteBPE
	}
	return api.BPE
}

func newCache(size int) *lru.Cache[string, []int] {
	if size <= 0 {
		return nil
	}
	c, _ := lru.New[string, []int](size)
	return c
}

func byteAlphabet() *symbols.Table {
	table := symbols.NewTable()
	for b := 0; b < 256; b++ {
		table.Add([]byte{byte(b)})
	}
	return table
}

// Train implements api.Tokenizer.
func (t *Tokenizer) Train(docs []string, cfg api.TrainConfig) (*api.TrainResult, error) {
	if t.trained {
		return nil, errors.WithStack(api.ErrAlreadyTrained)
	}
	cfg = cfg.WithDefaults()

	if !t.byteLevel {
		// Checked before splitting: the pattern engine would replace bad
		// bytes with U+FFFD and hide them.
		for i, doc := range docs {
			if !utf8.ValidString(doc) {
				return nil, errors.Wrapf(api.ErrInvalidUTF8, "document %d", i)
			}
		}
	}
	split, pattern, err := t.resolveSplitter(cfg)
	if err != nil {
		return nil, err
	}
	if t.byteLevel {
		split = rawFallback{split}
	}
	spans, counts, err := corpus.CountSpans(corpus.FromSlice(docs), split, cfg.Workers)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, errors.Wrap(api.ErrEmptyCorpus, "no spans after pretokenization")
	}

	var table *symbols.Table
	var words []merge.Word
	markerID := -1
	if t.byteLevel {
		table = byteAlphabet()
		words = byteWords(spans, counts)
	} else {
		for i, s := range spans {
			if !utf8.ValidString(s) {
				return nil, errors.Wrapf(api.ErrInvalidUTF8, "span %d", i)
			}
		}
		table = symbols.SortedAlphabet(spans)
		markerID, _ = table.AddString(api.EndOfWordMarker)
		words = merge.CharWords(spans, counts, table, markerID)
	}

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
	engRes := merge.Run(words, table, lengths, merge.FreqScorer{}, merge.Config{
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
	t.ranks = rankIndex(engRes.Rules)
	t.specials = specials
	t.unkID = unkID
	t.markerID = markerID
	t.splitter = split
	t.pattern = pattern
	t.cache = newCache(t.cacheSize)
	t.trained = true

	klog.V(1).Infof("%s training done: vocab %d, rules %d, exhausted %v",
		t.Algorithm(), table.Len(), len(engRes.Rules), engRes.Exhausted)
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

// rawFallback passes text that is not valid UTF-8 through as a single span.
// The pattern engine works on runes and would fold raw bytes into U+FFFD,
// which must never happen at the byte level.
type rawFallback struct {
	inner api.Splitter
}

func (s rawFallback) Split(text string) ([]string, error) {
	if !utf8.ValidString(text) {
		return []string{text}, nil
	}
	return s.inner.Split(text)
}

func rankIndex(rules []api.Rule) map[merge.Pair]int {
	ranks := make(map[merge.Pair]int, len(rules))
	for i, r := range rules {
		p := merge.Pair{A: r.Left, B: r.Right}
		if _, dup := ranks[p]; !dup {
			ranks[p] = i
		}
	}
	return ranks
}

func byteWords(spans []string, counts []int64) []merge.Word {
	words := make([]merge.Word, len(spans))
	for i, s := range spans {
		ids := make([]int, len(s))
		for j := 0; j < len(s); j++ {
			ids[j] = int(s[j])
		}
		words[i] = merge.Word{IDs: ids, Count: counts[i]}
	}
	return words
}

func (t *Tokenizer) usable() bool {
	return t.trained || (t.byteLevel && t.table != nil)
}

// Encode implements api.Tokenizer. Spans are encoded independently and go
// through a bounded LRU cache, so repeated words cost one lookup.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	if !t.usable() {
		return nil, errors.WithStack(api.ErrNotTrained)
	}
	if !t.byteLevel && !utf8.ValidString(text) {
		return nil, errors.WithStack(api.ErrInvalidUTF8)
	}
	var spans []string
	var err error
	if t.byteLevel {
		spans, err = rawFallback{t.splitter}.Split(text)
	} else {
		spans, err = t.splitter.Split(text)
	}
	if err != nil {
		return nil, err
	}
	var out []int
	for _, span := range spans {
		ids, err := t.encodeSpan(span)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (t *Tokenizer) encodeSpan(span string) ([]int, error) {
	if t.cache != nil {
		if ids, ok := t.cache.Get(span); ok {
			return append([]int(nil), ids...), nil
		}
	}
	var seq []int
	if t.byteLevel {
		seq = make([]int, len(span))
		for i := 0; i < len(span); i++ {
			seq[i] = int(span[i])
		}
	} else {
		if !utf8.ValidString(span) {
			return nil, errors.Wrapf(api.ErrInvalidUTF8, "span %q", span)
		}
		seq = make([]int, 0, utf8.RuneCountInString(span)+1)
		for _, r := range span {
			id, ok := t.table.IDString(string(r))
			if !ok {
				if t.unkID < 0 {
					return nil, errors.Wrapf(api.ErrUnknownSymbol, "character %q", r)
				}
				id = t.unkID
			}
			seq = append(seq, id)
		}
		if t.markerID >= 0 {
			seq = append(seq, t.markerID)
		}
	}
	seq = t.applyRules(seq)
	if t.cache != nil {
		t.cache.Add(span, append([]int(nil), seq...))
	}
	return seq, nil
}

// applyRules replays the merge rules in learned order: repeatedly find the
// adjacent pair with the lowest rule rank and collapse every occurrence.
func (t *Tokenizer) applyRules(ids []int) []int {
	for len(ids) >= 2 {
		bestRank := -1
		for i := 0; i+1 < len(ids); i++ {
			if rank, ok := t.ranks[merge.Pair{A: ids[i], B: ids[i+1]}]; ok {
				if bestRank < 0 || rank < bestRank {
					bestRank = rank
				}
			}
		}
		if bestRank < 0 {
			break
		}
		rule := t.rules[bestRank]
		w := merge.Word{IDs: ids, Count: 1}
		w.MergePair(merge.Pair{A: rule.Left, B: rule.Right}, rule.NewID)
		ids = w.IDs
	}
	return ids
}

// Decode implements api.Tokenizer. Character-level contents carry the
// end-of-word marker as a suffix, which is stripped back out here.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	if !t.usable() {
		return "", errors.WithStack(api.ErrNotTrained)
	}
	marker := []byte(api.EndOfWordMarker)
	var buf []byte
	for _, id := range ids {
		content, ok := t.table.Content(id)
		if !ok {
			return "", errors.Wrapf(api.ErrUnknownID, "id %d", id)
		}
		if !t.byteLevel && t.markerID >= 0 {
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

// TokenToID implements api.Tokenizer. Byte-level tokenizers accept the
// printable display form.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if t.table == nil {
		return 0, false
	}
	if t.byteLevel {
		raw, err := bytemap.Decode(token)
		if err != nil {
			return 0, false
		}
		return t.table.ID(raw)
	}
	return t.table.IDString(token)
}

// IDToToken implements api.Tokenizer. Byte-level contents are rendered in
// their printable display form.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	if t.table == nil {
		return "", false
	}
	content, ok := t.table.Content(id)
	if !ok {
		return "", false
	}
	if t.byteLevel {
		return bytemap.Encode(content), true
	}
	return string(content), true
}

// Export implements api.Tokenizer. Untrained character-level tokenizers have
// nothing to export and return nil; an untrained byte-level tokenizer exports
// its bare 256-entry alphabet.
func (t *Tokenizer) Export() *api.Model {
	if !t.usable() {
		return nil
	}
	m := &api.Model{
		Algorithm:   t.Algorithm(),
		Pattern:     t.pattern,
		Entries:     make([]api.Entry, t.table.Len()),
		Rules:       append([]api.Rule(nil), t.rules...),
		SpecialIDs:  append([]int(nil), t.specials...),
		UnknownID:   t.unkID,
		EndOfWordID: t.markerID,
	}
	for id := 0; id < t.table.Len(); id++ {
		content, _ := t.table.Content(id)
		m.Entries[id] = api.Entry{Content: string(content)}
	}
	return m
}

// Restore rebuilds a trained tokenizer from an exported model.
func Restore(m *api.Model) (*Tokenizer, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Algorithm != api.BPE && m.Algorithm != api.ByteBPE {
		return nil, errors.Wrapf(api.ErrInvalidModel, "model algorithm %s is not a BPE mode", m.Algorithm)
	}
	t := New()
	t.byteLevel = m.Algorithm == api.ByteBPE
	table := symbols.NewTable()
	for id, e := range m.Entries {
		if t.byteLevel && id < 256 && (len(e.Content) != 1 || e.Content[0] != byte(id)) {
			return nil, errors.Wrapf(api.ErrInvalidModel, "byte-level entry %d is not the raw byte", id)
		}
		table.AddString(e.Content)
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
	t.ranks = rankIndex(t.rules)
	t.specials = append([]int(nil), m.SpecialIDs...)
	t.unkID = m.UnknownID
	t.markerID = m.EndOfWordID
	t.cache = newCache(t.cacheSize)
	t.trained = true
	return t, nil
}
