package api

import "errors"

// Failure kinds shared by all algorithms. They are wrapped with context at the
// point of failure; match them with errors.Is.
var (
	// ErrEmptyCorpus: training saw no spans (empty corpus, or only empty
	// documents).
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrVocabTargetTooSmall: TargetVocabSize does not exceed the mandatory
	// single-symbol alphabet plus special tokens, leaving no room to train.
	ErrVocabTargetTooSmall = errors.New("vocabulary target too small")

	// ErrNotTrained: the operation needs a trained vocabulary.
	ErrNotTrained = errors.New("tokenizer not trained")

	// ErrAlreadyTrained: Train was called on a finished tokenizer.
	ErrAlreadyTrained = errors.New("tokenizer already trained")

	// ErrInvalidUTF8: a character-level mode was given malformed UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 input")

	// ErrUnknownID: Decode was given an identifier outside the vocabulary.
	ErrUnknownID = errors.New("unknown token identifier")

	// ErrUnknownSymbol: Encode hit content with no vocabulary entry and no
	// unknown token is configured to absorb it.
	ErrUnknownSymbol = errors.New("symbol not in vocabulary and no unknown token configured")

	// ErrInvalidModel: a Model failed validation when restoring a tokenizer.
	ErrInvalidModel = errors.New("invalid model")
)
