package unigram

import (
	"math"
	"slices"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/segtok/segtok/internal/trie"
	"github.com/segtok/segtok/tokenizers/api"
)

// lattice finds maximum-likelihood segmentations by dynamic programming over
// byte positions. The same machinery segments corpus spans during the E-step
// (ids are working piece indexes) and input text after training (ids are
// vocabulary identifiers); score and content close over whichever store is
// current.
type lattice struct {
	matcher *trie.Trie
	score   func(id int) float64
	content func(id int) string

	// unkID bridges positions no entry matches, one rune at a time, at
	// unkScore. Negative means bridging is an error.
	unkID    int
	unkScore float64
}

// segment returns the best-scoring tokenization of data. Positions are byte
// offsets; best[j] is the score of the best path from 0 to j and every
// relaxation records the incoming edge for backtracking.
func (l *lattice) segment(data []byte) ([]int, error) {
	n := len(data)
	if n == 0 {
		return nil, nil
	}
	negInf := math.Inf(-1)
	best := make([]float64, n+1)
	backID := make([]int, n+1)
	backLen := make([]int, n+1)
	for i := 1; i <= n; i++ {
		best[i] = negInf
	}

	for i := 0; i < n; i++ {
		if math.IsInf(best[i], -1) {
			continue
		}
		base := best[i]
		matched := false
		l.matcher.WalkMatches(data[i:], func(length, id int) bool {
			matched = true
			l.relax(best, backID, backLen, i, length, id, base+l.score(id))
			return true
		})
		if !matched {
			r, size := utf8.DecodeRune(data[i:])
			if l.unkID < 0 {
				return nil, errors.Wrapf(api.ErrUnknownSymbol, "character %q", r)
			}
			l.relax(best, backID, backLen, i, size, l.unkID, base+l.unkScore)
		}
	}
	if math.IsInf(best[n], -1) {
		// Bridging keeps every position reachable; only a missing unknown
		// token can strand the end.
		return nil, errors.WithStack(api.ErrUnknownSymbol)
	}

	var ids []int
	for at := n; at > 0; at -= backLen[at] {
		ids = append(ids, backID[at])
	}
	slices.Reverse(ids)
	return ids, nil
}

// relax installs the edge (i, i+length, id) when it beats the incumbent path
// to i+length. Exact ties prefer the longer incoming span, then the
// lexicographically smaller content, so segmentations never depend on
// relaxation order.
func (l *lattice) relax(best []float64, backID, backLen []int, i, length, id int, score float64) {
	j := i + length
	if score < best[j] {
		return
	}
	if score == best[j] {
		if length < backLen[j] {
			return
		}
		if length == backLen[j] && l.content(id) >= l.content(backID[j]) {
			return
		}
	}
	best[j] = score
	backID[j] = id
	backLen[j] = length
}
