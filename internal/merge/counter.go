package merge

import (
	"github.com/segtok/segtok/internal/parallel"
)

// CountPairs tallies the frequency of every adjacent pair across words,
// weighted by word multiplicity, and records which word indices contain each
// pair. Counting is spread over a fixed chunk grid and folded in chunk order,
// so the result is identical for any worker count.
func CountPairs(words []Word, workers int) (map[Pair]int64, map[Pair]map[int]struct{}) {
	type partial struct {
		counts map[Pair]int64
		where  map[Pair][]int
	}
	partials := make([]partial, parallel.NumChunks(len(words)))
	parallel.ForEachChunk(len(words), workers, func(chunk, start, end int) {
		counts := make(map[Pair]int64)
		where := make(map[Pair][]int)
		for wi := start; wi < end; wi++ {
			w := &words[wi]
			for j := 0; j+1 < len(w.IDs); j++ {
				p := Pair{w.IDs[j], w.IDs[j+1]}
				counts[p] += w.Count
				if lst := where[p]; len(lst) == 0 || lst[len(lst)-1] != wi {
					where[p] = append(lst, wi)
				}
			}
		}
		partials[chunk] = partial{counts: counts, where: where}
	})

	counts := make(map[Pair]int64)
	positions := make(map[Pair]map[int]struct{})
	for _, pt := range partials {
		for p, c := range pt.counts {
			counts[p] += c
		}
		for p, list := range pt.where {
			set := positions[p]
			if set == nil {
				set = make(map[int]struct{}, len(list))
				positions[p] = set
			}
			for _, wi := range list {
				set[wi] = struct{}{}
			}
		}
	}
	return counts, positions
}
