// Package parallel provides a fixed-grid fork-join helper.
//
// Work over n items is split into a chunk grid that depends only on n, never
// on the worker count. Callers collect per-chunk partial results into a slice
// indexed by chunk and fold them in chunk order, which makes even
// floating-point reductions bit-identical no matter how many workers ran or
// how they were scheduled.
package parallel

import (
	"runtime"
	"sync"
)

// maxChunks bounds the grid so tiny chunks don't dominate scheduling cost.
const maxChunks = 256

// NumChunks returns the number of chunks n items split into. It is a pure
// function of n.
func NumChunks(n int) int {
	if n <= 0 {
		return 0
	}
	if n < maxChunks {
		return n
	}
	return maxChunks
}

// ChunkBounds returns the half-open item range [start, end) of chunk i when n
// items are split into NumChunks(n) chunks.
func ChunkBounds(n, i int) (start, end int) {
	c := NumChunks(n)
	base := n / c
	rem := n % c
	start = i*base + min(i, rem)
	end = start + base
	if i < rem {
		end++
	}
	return start, end
}

// ForEachChunk runs fn once per chunk of [0, n), using at most workers
// goroutines (0 means GOMAXPROCS). fn may run concurrently with itself on
// different chunks; the chunk grid itself is deterministic.
func ForEachChunk(n, workers int, fn func(chunk, start, end int)) {
	c := NumChunks(n)
	if c == 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > c {
		workers = c
	}
	if workers == 1 {
		for i := 0; i < c; i++ {
			start, end := ChunkBounds(n, i)
			fn(i, start, end)
		}
		return
	}
	next := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				start, end := ChunkBounds(n, i)
				fn(i, start, end)
			}
		}()
	}
	for i := 0; i < c; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
}
