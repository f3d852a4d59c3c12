package api

import (
	"github.com/pkg/errors"
)

// Entry is one vocabulary entry of an exported model. Content holds the raw
// symbol bytes; byte-level models render it through the display mapping only
// when persisted.
type Entry struct {
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Rule is one merge rule: the pair (Left, Right) rewrites to NewID. The slice
// order in Model.Rules is the order rules were learned in, which is also the
// order they are applied in when encoding.
type Rule struct {
	Left  int `json:"left"`
	Right int `json:"right"`
	NewID int `json:"new_id"`
}

// Model is the portable shape of a trained tokenizer: enough to rebuild the
// exact encode/decode behavior, and what the modelfile package persists.
type Model struct {
	Algorithm Algorithm `json:"algorithm"`

	// ID uniquely names this export. Stamped when the model is exported.
	ID string `json:"id,omitempty"`

	// Pattern is the pretokenization pattern the model was trained with.
	// Empty when a custom Splitter was installed; restoring such a model
	// falls back to the default pattern.
	Pattern string `json:"pattern,omitempty"`

	// Entries are ordered by identifier: Entries[id] is the entry for id.
	Entries []Entry `json:"entries"`

	// Rules is the ordered merge rule list (empty for Unigram).
	Rules []Rule `json:"rules,omitempty"`

	// SpecialIDs are the identifiers of the injected special tokens, in
	// injection order.
	SpecialIDs []int `json:"special_ids,omitempty"`

	// UnknownID is the identifier unmapped content degrades to, or -1.
	UnknownID int `json:"unknown_id"`

	// EndOfWordID is the identifier of the end-of-word marker symbol, or -1
	// for modes that do not use one.
	EndOfWordID int `json:"end_of_word_id"`
}

// Validate checks the structural invariants a restorable model must hold:
// in-range rule and special identifiers, unique entry contents, and a
// consistent unknown/marker setup. It does not re-derive scores or rules.
func (m *Model) Validate() error {
	if m == nil {
		return errors.Wrap(ErrInvalidModel, "model is nil")
	}
	switch m.Algorithm {
	case BPE, ByteBPE, WordPiece, Unigram:
	default:
		return errors.Wrapf(ErrInvalidModel, "unknown algorithm %d", int(m.Algorithm))
	}
	if len(m.Entries) == 0 {
		return errors.Wrap(ErrInvalidModel, "no vocabulary entries")
	}
	seen := make(map[string]int, len(m.Entries))
	for id, e := range m.Entries {
		if prev, dup := seen[e.Content]; dup {
			return errors.Wrapf(ErrInvalidModel, "entries %d and %d share content %q", prev, id, e.Content)
		}
		seen[e.Content] = id
	}
	n := len(m.Entries)
	for i, r := range m.Rules {
		if r.Left < 0 || r.Left >= n || r.Right < 0 || r.Right >= n || r.NewID < 0 || r.NewID >= n {
			return errors.Wrapf(ErrInvalidModel, "rule %d references identifiers out of range", i)
		}
	}
	for _, id := range m.SpecialIDs {
		if id < 0 || id >= n {
			return errors.Wrapf(ErrInvalidModel, "special identifier %d out of range", id)
		}
	}
	if m.UnknownID < -1 || m.UnknownID >= n {
		return errors.Wrapf(ErrInvalidModel, "unknown identifier %d out of range", m.UnknownID)
	}
	if m.EndOfWordID < -1 || m.EndOfWordID >= n {
		return errors.Wrapf(ErrInvalidModel, "end-of-word identifier %d out of range", m.EndOfWordID)
	}
	if m.Algorithm == ByteBPE && n < 256 {
		return errors.Wrapf(ErrInvalidModel, "byte-level model has %d entries, need at least 256", n)
	}
	return nil
}
