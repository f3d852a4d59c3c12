// Package api defines the Tokenizer API shared by every algorithm.
// It's also what breaks the cyclic dependency, and allows users to import
// `tokenizers` and get the default implementations.
package api

// Algorithm selects one of the interchangeable subword algorithms.
// It is fixed at construction time; a tokenizer never changes algorithm.
type Algorithm int

const (
	// BPE is character-level byte-pair encoding: frequency-ranked merges of
	// adjacent symbols, with an end-of-word marker appended to every word.
	BPE Algorithm = iota
	// ByteBPE is byte-level BPE: the alphabet is all 256 byte values, so any
	// input is encodable without unknown tokens.
	ByteBPE
	// WordPiece uses the BPE merge skeleton but ranks candidate pairs by
	// likelihood gain, and encodes by greedy longest-match.
	WordPiece
	// Unigram trains top-down: a large seeded vocabulary is pruned by EM, and
	// encoding picks the best segmentation by Viterbi search.
	Unigram
)

//go:generate enumer -type=Algorithm -transform=snake -values -text -json api.go

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case BPE:
		return "bpe"
	case ByteBPE:
		return "byte_bpe"
	case WordPiece:
		return "wordpiece"
	case Unigram:
		return "unigram"
	}
	return "invalid"
}

// Splitter turns text into an ordered sequence of spans before training and
// encoding. Implementations must be deterministic; splitters used for encoding
// must tile the input (the concatenation of the spans equals the text), or
// decode(encode(x)) == x cannot hold.
type Splitter interface {
	Split(text string) ([]string, error)
}

// EndOfWordMarker is the content of the word-boundary symbol appended to every
// word by the character-level modes, so that merges never cross word
// boundaries. It is stripped again when decoding.
const EndOfWordMarker = "</w>"

// DefaultMaxSubwordLength bounds the length (in symbols) of stored vocabulary
// entries when TrainConfig.MaxSubwordLength is zero.
const DefaultMaxSubwordLength = 16

// TrainConfig carries the knobs common to all four algorithms. The zero value
// is not trainable: TargetVocabSize must be set.
type TrainConfig struct {
	// TargetVocabSize is the exact vocabulary size to reach, counting every
	// entry: the single-symbol alphabet, the end-of-word marker where one is
	// used, learned entries, and special tokens. Training stops short of the
	// target only when it runs out of candidates, which is reported via
	// TrainResult.Exhausted.
	TargetVocabSize int

	// SpecialTokens are injected after the algorithm completes, in order,
	// with identifiers immediately following the algorithm-derived ones.
	// A special token whose content collides with an existing entry is
	// skipped, keeping the earlier entry.
	SpecialTokens []string

	// UnknownToken, when non-empty, names the special token that unmapped
	// content degrades to during encoding. It is appended to SpecialTokens
	// if not already listed. When empty, encoding unmapped content fails
	// with ErrUnknownSymbol.
	UnknownToken string

	// MinPairFrequency filters merge candidates: a pair must occur strictly
	// more often than this to be merged. Zero (the default) keeps every
	// observed pair eligible.
	MinPairFrequency int

	// MaxSubwordLength bounds the length, in single-symbol units, of any
	// vocabulary entry: merges that would exceed it are skipped, and Unigram
	// seeding enumerates no longer substrings. Zero means
	// DefaultMaxSubwordLength.
	MaxSubwordLength int

	// PretokenizePattern overrides the default word-splitting pattern with a
	// regexp2 pattern. Ignored when a custom Splitter is installed on the
	// tokenizer. Empty means the default pattern.
	PretokenizePattern string

	// Workers caps the parallelism of the counting and estimation phases.
	// Zero means GOMAXPROCS. Results are identical for any value.
	Workers int
}

// WithDefaults returns a copy of the config with zero fields replaced by their
// documented defaults. The unknown token, when set, is folded into
// SpecialTokens.
func (c TrainConfig) WithDefaults() TrainConfig {
	if c.MaxSubwordLength <= 0 {
		c.MaxSubwordLength = DefaultMaxSubwordLength
	}
	if c.UnknownToken != "" {
		found := false
		for _, s := range c.SpecialTokens {
			if s == c.UnknownToken {
				found = true
				break
			}
		}
		if !found {
			specials := make([]string, 0, len(c.SpecialTokens)+1)
			specials = append(specials, c.SpecialTokens...)
			c.SpecialTokens = append(specials, c.UnknownToken)
		}
	}
	return c
}

// TrainResult summarizes a completed training run.
type TrainResult struct {
	// VocabSize is the final vocabulary size, specials included.
	VocabSize int
	// Rules is the number of merge rules learned (always zero for Unigram).
	Rules int
	// Rounds counts merge rounds, or EM rounds for Unigram.
	Rounds int
	// Exhausted reports that training stopped before TargetVocabSize because
	// no mergeable (or prunable) candidates remained. The tokenizer is fully
	// trained and usable at its reduced size.
	Exhausted bool
}

// Tokenizer is the uniform surface of all four algorithms. Encode, Decode and
// the lookup methods are safe for concurrent use once Train has returned;
// Train itself must not run concurrently with anything else on the same
// instance, and may run at most once.
type Tokenizer interface {
	// Train builds the vocabulary from the corpus. Training a second time
	// returns ErrAlreadyTrained: a finished tokenizer is immutable.
	Train(corpus []string, cfg TrainConfig) (*TrainResult, error)

	// Encode maps text to token identifiers.
	Encode(text string) ([]int, error)

	// Decode maps token identifiers back to text. Every id must be a valid
	// identifier of this vocabulary, or it fails with ErrUnknownID.
	Decode(ids []int) (string, error)

	// VocabSize returns the number of vocabulary entries, specials included.
	VocabSize() int

	// TokenToID looks up a token by its content.
	TokenToID(token string) (int, bool)

	// IDToToken returns the content of an identifier. Byte-level tokenizers
	// render contents through the printable display mapping.
	IDToToken(id int) (string, bool)

	// Algorithm reports which algorithm this tokenizer runs.
	Algorithm() Algorithm

	// Export captures the trained model in its portable shape.
	Export() *Model
}
