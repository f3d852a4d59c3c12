// Package tokenizers puts the four subword algorithms behind one constructor
// pair: New for an untrained tokenizer of a chosen algorithm, FromModel to
// rebuild a trained one from its exported shape. The algorithm is fixed at
// construction; nothing dispatches on input data at runtime.
package tokenizers

import (
	"github.com/pkg/errors"

	"github.com/segtok/segtok/internal/parallel"
	"github.com/segtok/segtok/tokenizers/api"
	"github.com/segtok/segtok/tokenizers/bpe"
	"github.com/segtok/segtok/tokenizers/unigram"
	"github.com/segtok/segtok/tokenizers/wordpiece"
)

// New returns an untrained tokenizer for the chosen algorithm.
func New(algo api.Algorithm) (api.Tokenizer, error) {
	switch algo {
	case api.BPE:
		return bpe.New(), nil
	case api.ByteBPE:
		return bpe.NewByteLevel(), nil
	case api.WordPiece:
		return wordpiece.New(), nil
	case api.Unigram:
		return unigram.New(), nil
	}
	return nil, errors.Wrapf(api.ErrInvalidModel, "unknown algorithm %d", int(algo))
}

// FromModel rebuilds a trained tokenizer from an exported model, validating
// it first. The result is immutable and safe for concurrent use.
func FromModel(m *api.Model) (api.Tokenizer, error) {
	if m == nil {
		return nil, errors.Wrap(api.ErrInvalidModel, "model is nil")
	}
	switch m.Algorithm {
	case api.BPE, api.ByteBPE:
		return bpe.Restore(m)
	case api.WordPiece:
		return wordpiece.Restore(m)
	case api.Unigram:
		return unigram.Restore(m)
	}
	return nil, errors.Wrapf(api.ErrInvalidModel, "unknown algorithm %d", int(m.Algorithm))
}

// EncodeBatch encodes texts concurrently and returns the id sequences in
// input order. Trained tokenizers are reentrant, so the only coordination
// needed is the chunk grid.
func EncodeBatch(t api.Tokenizer, texts []string, workers int) ([][]int, error) {
	out := make([][]int, len(texts))
	errs := make([]error, parallel.NumChunks(len(texts)))
	parallel.ForEachChunk(len(texts), workers, func(chunk, start, end int) {
		for i := start; i < end; i++ {
			ids, err := t.Encode(texts[i])
			if err != nil {
				errs[chunk] = errors.Wrapf(err, "text %d", i)
				return
			}
			out[i] = ids
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeBatch decodes id sequences concurrently and returns the texts in
// input order.
func DecodeBatch(t api.Tokenizer, seqs [][]int, workers int) ([]string, error) {
	out := make([]string, len(seqs))
	errs := make([]error, parallel.NumChunks(len(seqs)))
	parallel.ForEachChunk(len(seqs), workers, func(chunk, start, end int) {
		for i := start; i < end; i++ {
			text, err := t.Decode(seqs[i])
			if err != nil {
				errs[chunk] = errors.Wrapf(err, "sequence %d", i)
				return
			}
			out[i] = text
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
