// Package bytemap renders raw byte-level vocabulary contents as printable
// text and back, using the GPT-2 byte-to-unicode convention: printable
// Latin-1 bytes map to themselves, every other byte value b to rune 256+n for
// the n-th such byte. The mapping is a bijection, so rendered contents are
// always recoverable exactly.
//
// It exists purely for display and persistence of byte-level models; encoding
// and decoding text never goes through it.
package bytemap

import "github.com/pkg/errors"

var byteToRune [256]rune
var runeToByte map[rune]byte

func init() {
	runeToByte = make(map[rune]byte, 256)
	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToRune[b] = rune(b)
		} else {
			byteToRune[b] = rune(256 + n)
			n++
		}
		runeToByte[byteToRune[b]] = byte(b)
	}
}

// Encode renders raw bytes as their printable display form.
func Encode(raw []byte) string {
	out := make([]rune, len(raw))
	for i, b := range raw {
		out[i] = byteToRune[b]
	}
	return string(out)
}

// Decode recovers raw bytes from a display form produced by Encode. Runes
// outside the mapping are an error: they cannot have come from Encode.
func Decode(display string) ([]byte, error) {
	out := make([]byte, 0, len(display))
	for _, r := range display {
		b, ok := runeToByte[r]
		if !ok {
			return nil, errors.Errorf("rune %q is not part of the byte display mapping", r)
		}
		out = append(out, b)
	}
	return out, nil
}
