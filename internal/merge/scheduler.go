package merge

import "container/heap"

// Job is one merge candidate: a pair, the score it was ranked with, the
// frequency snapshot the score was derived from, and the generation stamp of
// that snapshot.
type Job struct {
	Pair  Pair
	Score float64
	Count int64
	Gen   uint64
}

// jobHeap is a max-heap on score; ties go to the lexicographically smallest
// pair, so equal-scored candidates resolve to the oldest content.
type jobHeap []Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].Pair.Less(h[j].Pair)
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	*h = old[:n-1]
	return job
}

// Scheduler is the lazily-invalidated priority queue the merge loop selects
// candidates from. Every merge round advances a generation counter; pairs
// whose statistics change are touched with the current generation. A popped
// job stamped before its pair's last touch is stale and must be re-derived
// from live counts instead of trusted; nothing in the heap is ever updated
// in place.
type Scheduler struct {
	heap jobHeap
	gen  map[Pair]uint64
	now  uint64
}

// NewScheduler returns an empty scheduler at generation zero.
func NewScheduler() *Scheduler {
	return &Scheduler{gen: make(map[Pair]uint64)}
}

// Push adds a candidate stamped with the current generation.
func (s *Scheduler) Push(p Pair, score float64, count int64) {
	heap.Push(&s.heap, Job{Pair: p, Score: score, Count: count, Gen: s.now})
}

// Pop removes and returns the highest-ranked candidate. The caller must check
// Stale before acting on it.
func (s *Scheduler) Pop() (Job, bool) {
	if len(s.heap) == 0 {
		return Job{}, false
	}
	return heap.Pop(&s.heap).(Job), true
}

// Stale reports whether the job was stamped before the last change to its
// pair's statistics.
func (s *Scheduler) Stale(j Job) bool {
	return j.Gen < s.gen[j.Pair]
}

// BeginRound advances the generation counter. Call once per applied merge,
// before touching the pairs the merge changed.
func (s *Scheduler) BeginRound() { s.now++ }

// Touch marks a pair's statistics as changed in the current generation,
// invalidating every job pushed for it in earlier generations.
func (s *Scheduler) Touch(p Pair) { s.gen[p] = s.now }

// Len returns the number of queued candidates, stale ones included.
func (s *Scheduler) Len() int { return len(s.heap) }
