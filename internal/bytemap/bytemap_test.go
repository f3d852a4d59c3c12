package bytemap

import (
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBijection tests that every byte value round-trips through the display
// mapping and that all 256 display runes are distinct.
func TestBijection(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	display := Encode(all)
	seen := make(map[rune]bool)
	for _, r := range display {
		assert.False(t, seen[r], "display rune %q repeated", r)
		seen[r] = true
		assert.True(t, unicode.IsGraphic(r), "display rune %q not printable", r)
	}
	require.Len(t, seen, 256)

	back, err := Decode(display)
	require.NoError(t, err)
	assert.Equal(t, all, back)
}

// TestPrintableIdentity tests that printable ASCII maps to itself while space
// and control bytes are remapped.
func TestPrintableIdentity(t *testing.T) {
	assert.Equal(t, "hello!", Encode([]byte("hello!")))
	assert.NotEqual(t, " ", Encode([]byte(" ")))
	assert.Equal(t, "Ġ", Encode([]byte(" "))) // space is the 0x20th remapped byte
}

// TestDecodeRejectsForeignRunes tests that runes outside the mapping fail.
func TestDecodeRejectsForeignRunes(t *testing.T) {
	_, err := Decode("ok�ok")
	assert.Error(t, err)
}
