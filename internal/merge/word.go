// Package merge implements the shared machinery of the bottom-up trainers:
// the word representation pair frequencies are counted over, the parallel
// pair counter, the lazily-invalidated merge scheduler, and the engine that
// drives merge rounds until a vocabulary budget is met.
package merge

// Pair is an adjacent symbol pair, identified by the two symbol ids.
type Pair struct {
	A, B int
}

// Less orders pairs lexicographically by (A, B). Identifiers are assigned in
// creation order, so this is also the content-age order used for tie-breaks.
func (p Pair) Less(q Pair) bool {
	if p.A != q.A {
		return p.A < q.A
	}
	return p.B < q.B
}

// Word is one pretokenized span as a symbol sequence, with the number of
// times it occurred in the corpus. Words exist only while training runs.
type Word struct {
	IDs   []int
	Count int64
}

// Delta is a change to one pair's global frequency caused by rewriting a
// word. Diff is already weighted by the word's multiplicity.
type Delta struct {
	Pair Pair
	Diff int64
}

// MergePair rewrites every non-overlapping occurrence of p in the word, left
// to right, into newID. It returns the frequency deltas of the affected
// neighbor pairs (the broken (prev,A) and (B,next) pairs and the created
// (prev,new) and (new,next) pairs, plus the consumed occurrences of p itself)
// and the total number of occurrences collapsed, weighted by the word count.
func (w *Word) MergePair(p Pair, newID int) (deltas []Delta, merged int64) {
	ids := w.IDs
	n := len(ids)
	if n < 2 {
		return nil, 0
	}
	result := make([]int, 0, n)
	var occurrences int64
	for i := 0; i < n; {
		if i+1 < n && ids[i] == p.A && ids[i+1] == p.B {
			if len(result) > 0 {
				prev := result[len(result)-1]
				deltas = append(deltas,
					Delta{Pair{prev, p.A}, -w.Count},
					Delta{Pair{prev, newID}, w.Count})
			}
			if i+2 < n {
				next := ids[i+2]
				deltas = append(deltas,
					Delta{Pair{p.B, next}, -w.Count},
					Delta{Pair{newID, next}, w.Count})
			}
			deltas = append(deltas, Delta{p, -w.Count})
			result = append(result, newID)
			occurrences++
			i += 2
		} else {
			result = append(result, ids[i])
			i++
		}
	}
	w.IDs = result
	return deltas, occurrences * w.Count
}
