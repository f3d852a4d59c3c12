package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segtok/segtok/pretokenize"
)

// TestCountSpansCoalesces tests multiplicity counting and first-appearance
// order.
func TestCountSpansCoalesces(t *testing.T) {
	docs := []string{"low lower", "low newest", "newest newest"}
	spans, counts, err := CountSpans(FromSlice(docs), pretokenize.Default(), 1)
	require.NoError(t, err)

	want := map[string]int64{
		"low": 2, " lower": 1, " newest": 2, "newest": 1,
	}
	require.Len(t, spans, len(want))
	assert.Equal(t, "low", spans[0], "first span keeps first-appearance order")
	got := make(map[string]int64, len(spans))
	for i, s := range spans {
		got[s] = counts[i]
	}
	assert.Equal(t, want, got)
}

// TestCountSpansWorkerIndependence tests identical span order and counts for
// any worker count, over enough documents to fill several batches.
func TestCountSpansWorkerIndependence(t *testing.T) {
	docs := make([]string, 20000)
	for i := range docs {
		docs[i] = fmt.Sprintf("doc %d has word%d and word%d", i, i%97, i%13)
	}
	baseSpans, baseCounts, err := CountSpans(FromSlice(docs), pretokenize.Default(), 1)
	require.NoError(t, err)
	for _, workers := range []int{3, 8} {
		spans, counts, err := CountSpans(FromSlice(docs), pretokenize.Default(), workers)
		require.NoError(t, err)
		assert.Equal(t, baseSpans, spans, "workers=%d", workers)
		assert.Equal(t, baseCounts, counts, "workers=%d", workers)
	}
}

// TestCountSpansEmpty tests that an empty corpus is empty results, not an
// error.
func TestCountSpansEmpty(t *testing.T) {
	spans, counts, err := CountSpans(FromSlice(nil), pretokenize.Default(), 2)
	require.NoError(t, err)
	assert.Empty(t, spans)
	assert.Empty(t, counts)
}

// TestLines tests the mmap line reader against CRLF, blank lines and a
// missing trailing newline.
func TestLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte("first line\r\n\nsecond line\nlast"), 0o644))

	docs, err := Lines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first line", "second line", "last"}, docs)
}

// TestLinesEmptyFile tests that an empty file maps to no documents.
func TestLinesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	docs, err := Lines(path)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = Lines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

// TestParquetText tests reading the text column of a parquet corpus.
func TestParquetText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.parquet")
	rows := []textRow{{Text: "first document"}, {Text: "second document"}}
	require.NoError(t, parquet.WriteFile(path, rows))

	docs, err := ParquetText(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first document", "second document"}, docs)

	_, err = ParquetText(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.Error(t, err)
}
