package merge

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCountPairsWeighted tests multiplicity-weighted counts and the word
// index sets.
func TestCountPairsWeighted(t *testing.T) {
	words := []Word{
		{IDs: []int{1, 2, 1, 2}, Count: 3},
		{IDs: []int{2, 1}, Count: 1},
		{IDs: []int{7}, Count: 10},
	}
	counts, positions := CountPairs(words, 2)

	assert.Equal(t, map[Pair]int64{
		{1, 2}: 6,
		{2, 1}: 4,
	}, counts)

	require.Contains(t, positions, Pair{1, 2})
	assert.Equal(t, map[int]struct{}{0: {}}, positions[Pair{1, 2}])
	assert.Equal(t, map[int]struct{}{0: {}, 1: {}}, positions[Pair{2, 1}])
}

// TestCountPairsWorkerIndependence tests that results are identical for any
// worker count, on a corpus large enough to span many chunks.
func TestCountPairsWorkerIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	words := make([]Word, 3000)
	for i := range words {
		ids := make([]int, 2+rng.Intn(12))
		for j := range ids {
			ids[j] = rng.Intn(40)
		}
		words[i] = Word{IDs: ids, Count: int64(1 + rng.Intn(5))}
	}

	baseCounts, basePositions := CountPairs(words, 1)
	for _, workers := range []int{2, 7, 16} {
		counts, positions := CountPairs(words, workers)
		assert.Equal(t, baseCounts, counts, "workers=%d", workers)
		assert.Equal(t, basePositions, positions, "workers=%d", workers)
	}
}

// TestCountPairsEmpty tests the trivial inputs.
func TestCountPairsEmpty(t *testing.T) {
	counts, positions := CountPairs(nil, 4)
	assert.Empty(t, counts)
	assert.Empty(t, positions)
}
