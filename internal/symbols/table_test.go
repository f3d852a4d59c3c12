package symbols

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTableDenseIDs tests that identifiers are dense and assigned in
// insertion order.
func TestTableDenseIDs(t *testing.T) {
	tab := NewTable()
	for i := 0; i < 10; i++ {
		id, added := tab.AddString(fmt.Sprintf("sym-%d", i))
		require.True(t, added)
		assert.Equal(t, i, id)
	}
	assert.Equal(t, 10, tab.Len())
	for i := 0; i < 10; i++ {
		content, ok := tab.Content(i)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("sym-%d", i), string(content))
		id, ok := tab.IDString(fmt.Sprintf("sym-%d", i))
		require.True(t, ok)
		assert.Equal(t, i, id)
	}
}

// TestTableDuplicateContent tests that re-adding content returns the original
// identifier without growing the table.
func TestTableDuplicateContent(t *testing.T) {
	tab := NewTable()
	first, added := tab.Add([]byte("ab"))
	require.True(t, added)
	again, added := tab.Add([]byte("ab"))
	assert.False(t, added)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, tab.Len())
}

// TestTableOwnsContent tests that the table copies caller-owned bytes.
func TestTableOwnsContent(t *testing.T) {
	buf := []byte("xy")
	tab := NewTable()
	id, _ := tab.Add(buf)
	buf[0] = 'z'
	content, ok := tab.Content(id)
	require.True(t, ok)
	assert.Equal(t, "xy", string(content))
	_, ok = tab.ID([]byte("xy"))
	assert.True(t, ok)
}

// TestInjectSpecials tests appended identifiers and collision skipping.
func TestInjectSpecials(t *testing.T) {
	tab := NewTable()
	tab.AddString("a")
	tab.AddString("<pad>")

	ids, skipped := InjectSpecials(tab, []string{"<pad>", "<unk>", "<s>"})
	assert.Equal(t, []int{2, 3}, ids)
	assert.Equal(t, []string{"<pad>"}, skipped)
	assert.Equal(t, 4, tab.Len())

	id, ok := tab.IDString("<pad>")
	require.True(t, ok)
	assert.Equal(t, 1, id, "the earlier entry keeps its identifier")
}

// TestSortedAlphabet tests rune ordering and deduplication across spans.
func TestSortedAlphabet(t *testing.T) {
	tab := SortedAlphabet([]string{"ba", "aèb", "è"})
	require.Equal(t, 3, tab.Len())
	for i, want := range []string{"a", "b", "è"} {
		content, ok := tab.Content(i)
		require.True(t, ok)
		assert.Equal(t, want, string(content))
	}
}

// TestTableScores tests score storage and out-of-range behavior.
func TestTableScores(t *testing.T) {
	tab := NewTable()
	id, _ := tab.AddString("a")
	tab.SetScore(id, -1.5)
	assert.Equal(t, -1.5, tab.Score(id))
	assert.Zero(t, tab.Score(99))
	tab.SetScore(99, 3.0) // ignored
	assert.Zero(t, tab.Score(99))

	_, ok := tab.Content(-1)
	assert.False(t, ok)
	_, ok = tab.Content(1)
	assert.False(t, ok)
}
