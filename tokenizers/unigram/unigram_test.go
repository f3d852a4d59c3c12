package unigram

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segtok/segtok/pretokenize"
	"github.com/segtok/segtok/tokenizers/api"
)

func TestTrainCollapsesSingleWord(t *testing.T) {
	// Substrings of "aaaa" seed a, aa, aaa, aaaa. The first E-step segments
	// the only span as [aaaa], so aa and aaa drop at zero usage, leaving
	// exactly the protected single and the whole word.
	tok := New()
	res, err := tok.Train([]string{"aaaa"}, api.TrainConfig{TargetVocabSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, res.VocabSize)
	assert.Equal(t, 0, res.Rounds)
	assert.False(t, res.Exhausted)

	a, ok := tok.IDToToken(0)
	require.True(t, ok)
	assert.Equal(t, "a", a, "protected singles come first")
	whole, ok := tok.IDToToken(1)
	require.True(t, ok)
	assert.Equal(t, "aaaa", whole)

	ids, err := tok.Encode("aaaa")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)

	// "aa" was pruned, so two singles are the only segmentation left.
	ids, err = tok.Encode("aa")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, ids)

	text, err := tok.Decode([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, "aaaaa", text)
}

func TestTrainPrunesLowestLoss(t *testing.T) {
	// Spans ab x4 and cd x3. Both pair pieces dominate their spans after the
	// first M-step; pruning one entry must pick "cd", whose removal forfeits
	// less likelihood (3 occurrences against 4).
	tok := New().WithSplitter(pretokenize.Whitespace())
	res, err := tok.Train([]string{"ab ab ab", "cd cd", "ab cd"},
		api.TrainConfig{TargetVocabSize: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, res.VocabSize)
	assert.Equal(t, 1, res.Rounds)
	assert.False(t, res.Exhausted)

	ab, ok := tok.TokenToID("ab")
	require.True(t, ok)
	assert.Equal(t, 4, ab, "the surviving pair follows the four singles")
	_, ok = tok.TokenToID("cd")
	assert.False(t, ok, "pruned")

	ids, err := tok.Encode("ab cd")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 3}, ids, "ab|c|d")

	// The whitespace splitter drops separators, so decoding joins the words.
	text, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "abcd", text)
}

func TestTrainUndershootIsExhausted(t *testing.T) {
	// One span "ab": after aa-style drops only {a, b, ab} can survive, so a
	// target of 4 is unreachable.
	tok := New()
	res, err := tok.Train([]string{"ab"}, api.TrainConfig{TargetVocabSize: 4})
	require.NoError(t, err)

	assert.Equal(t, 3, res.VocabSize)
	assert.True(t, res.Exhausted)
}

func TestEncodeUnknownBridging(t *testing.T) {
	t.Run("without unknown token", func(t *testing.T) {
		tok := New().WithSplitter(pretokenize.Whitespace())
		_, err := tok.Train([]string{"ab ab ab", "cd cd", "ab cd"},
			api.TrainConfig{TargetVocabSize: 5})
		require.NoError(t, err)

		_, err = tok.Encode("ab xy")
		assert.ErrorIs(t, err, api.ErrUnknownSymbol)
	})

	t.Run("bridges per rune", func(t *testing.T) {
		tok := New().WithSplitter(pretokenize.Whitespace())
		_, err := tok.Train([]string{"ab ab ab", "cd cd", "ab cd"}, api.TrainConfig{
			TargetVocabSize: 6,
			UnknownToken:    "<unk>",
		})
		require.NoError(t, err)
		unk, ok := tok.TokenToID("<unk>")
		require.True(t, ok)
		assert.Equal(t, 5, unk)

		ids, err := tok.Encode("xb")
		require.NoError(t, err)
		assert.Equal(t, []int{unk, 1}, ids)
		text, err := tok.Decode(ids)
		require.NoError(t, err)
		assert.Equal(t, "<unk>b", text)
	})
}

func TestTrainErrors(t *testing.T) {
	t.Run("not trained", func(t *testing.T) {
		_, err := New().Encode("ab")
		assert.ErrorIs(t, err, api.ErrNotTrained)
		_, err = New().Decode([]int{0})
		assert.ErrorIs(t, err, api.ErrNotTrained)
		assert.Nil(t, New().Export())
	})

	t.Run("empty corpus", func(t *testing.T) {
		_, err := New().Train([]string{""}, api.TrainConfig{TargetVocabSize: 5})
		assert.ErrorIs(t, err, api.ErrEmptyCorpus)
	})

	t.Run("target too small", func(t *testing.T) {
		// Two distinct characters already need a target above 2.
		_, err := New().Train([]string{"ab"}, api.TrainConfig{TargetVocabSize: 2})
		assert.ErrorIs(t, err, api.ErrVocabTargetTooSmall)
	})

	t.Run("invalid document", func(t *testing.T) {
		_, err := New().Train([]string{"\xff"}, api.TrainConfig{TargetVocabSize: 5})
		assert.ErrorIs(t, err, api.ErrInvalidUTF8)
	})

	t.Run("already trained", func(t *testing.T) {
		tok := New()
		_, err := tok.Train([]string{"aaaa"}, api.TrainConfig{TargetVocabSize: 2})
		require.NoError(t, err)
		_, err = tok.Train([]string{"aaaa"}, api.TrainConfig{TargetVocabSize: 2})
		assert.ErrorIs(t, err, api.ErrAlreadyTrained)
	})

	t.Run("unknown id", func(t *testing.T) {
		tok := New()
		_, err := tok.Train([]string{"aaaa"}, api.TrainConfig{TargetVocabSize: 2})
		require.NoError(t, err)
		_, err = tok.Decode([]int{7})
		assert.ErrorIs(t, err, api.ErrUnknownID)
	})
}

func randomDocs(n int) []string {
	words := []string{
		"amber", "birch", "cedar", "delta", "ember", "fjord", "grove",
		"heath", "inlet", "knoll", "larch", "marsh", "oasis", "pines",
		"quarry", "reef", "slope", "tundra", "vale", "willow",
	}
	rng := rand.New(rand.NewSource(11))
	docs := make([]string, n)
	for i := range docs {
		k := 2 + rng.Intn(7)
		doc := words[rng.Intn(len(words))]
		for j := 1; j < k; j++ {
			doc += " " + words[rng.Intn(len(words))]
		}
		docs[i] = doc
	}
	return docs
}

func TestTrainWorkerCountInvariance(t *testing.T) {
	docs := randomDocs(1200)
	cfgFor := func(workers int) api.TrainConfig {
		return api.TrainConfig{
			TargetVocabSize: 60,
			UnknownToken:    "<unk>",
			Workers:         workers,
		}
	}

	serial := New()
	_, err := serial.Train(docs, cfgFor(1))
	require.NoError(t, err)

	parallel := New()
	_, err = parallel.Train(docs, cfgFor(8))
	require.NoError(t, err)

	assert.Equal(t, serial.Export(), parallel.Export())

	want, err := serial.Encode(docs[42])
	require.NoError(t, err)
	got, err := parallel.Encode(docs[42])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRestoreRoundTrip(t *testing.T) {
	// Default splitter, so the pattern persists and the restored tokenizer
	// splits identically.
	tok := New()
	_, err := tok.Train([]string{"ab ab ab", "cd cd", "ab cd"}, api.TrainConfig{
		TargetVocabSize: 8,
		UnknownToken:    "<unk>",
	})
	require.NoError(t, err)
	model := tok.Export()
	require.NoError(t, model.Validate())
	assert.Empty(t, model.Rules, "unigram models carry no rule list")
	assert.Equal(t, -1, model.EndOfWordID)

	restored, err := Restore(model)
	require.NoError(t, err)
	assert.Equal(t, model, restored.Export())

	for _, text := range []string{"ab cd", "xb", "abab"} {
		want, err := tok.Encode(text)
		require.NoError(t, err)
		got, err := restored.Encode(text)
		require.NoError(t, err)
		assert.Equal(t, want, got, text)
	}

	t.Run("foreign model", func(t *testing.T) {
		bad := tok.Export()
		bad.Algorithm = api.WordPiece
		_, err := Restore(bad)
		assert.ErrorIs(t, err, api.ErrInvalidModel)
	})
}
