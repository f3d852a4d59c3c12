package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segtok/segtok/tokenizers/api"
)

func TestParseAlgorithm(t *testing.T) {
	for name, want := range map[string]api.Algorithm{
		"bpe":       api.BPE,
		"byte_bpe":  api.ByteBPE,
		"bbpe":      api.ByteBPE,
		"wordpiece": api.WordPiece,
		"unigram":   api.Unigram,
	} {
		got, err := parseAlgorithm(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := parseAlgorithm("slowpiece")
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"<pad>", "<unk>"}, splitList("<pad>, <unk>"))
	assert.Equal(t, []string{"a"}, splitList(",a,,"))
}

func TestReadCorpusPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\r\n\nthree"), 0o644))

	docs, err := readCorpus(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, docs)
}
