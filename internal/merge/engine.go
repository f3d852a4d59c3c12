package merge

import (
	"k8s.io/klog/v2"

	"github.com/segtok/segtok/internal/symbols"
	"github.com/segtok/segtok/tokenizers/api"
)

// Scorer ranks merge candidates. Frequency-based training uses FreqScorer;
// likelihood-based training supplies its own implementation with whatever
// bookkeeping the score needs.
type Scorer interface {
	// Init sees the scanned words and seeded table before the first round.
	Init(words []Word, table *symbols.Table)
	// Score ranks a candidate given its current frequency. Must be a pure
	// function of the scorer state and its arguments.
	Score(p Pair, count int64) float64
	// Applied is called after a merge collapses occurrences of p into newID,
	// with the multiplicity-weighted occurrence total.
	Applied(p Pair, newID int, occurrences int64)
}

// FreqScorer ranks candidates by raw pair frequency.
type FreqScorer struct{}

// Init implements Scorer.
func (FreqScorer) Init([]Word, *symbols.Table) {}

// Score implements Scorer. Counts up to 2^53 convert exactly.
func (FreqScorer) Score(_ Pair, count int64) float64 { return float64(count) }

// Applied implements Scorer.
func (FreqScorer) Applied(Pair, int, int64) {}

// Config carries the engine knobs.
type Config struct {
	// TargetLen is the symbol table length to stop at.
	TargetLen int
	// MinFrequency: candidates must occur strictly more often than this.
	MinFrequency int64
	// MaxLen bounds merged symbol lengths, in single-symbol units.
	MaxLen int
	// Workers caps counting parallelism (0 = GOMAXPROCS).
	Workers int
}

// Result reports what the engine did.
type Result struct {
	// Rules is the ordered merge rule list.
	Rules []api.Rule
	// Rounds is the number of applied merges.
	Rounds int
	// Exhausted is set when the candidate queue ran dry before TargetLen.
	Exhausted bool
}

// Run drives merge rounds until the table reaches cfg.TargetLen or no viable
// candidate remains. words is rewritten in place; lengths holds the length in
// single-symbol units of every table entry and must cover the seeded ids.
//
// Each round pops the best candidate, re-deriving stale jobs from live counts
// instead of trusting them, then rewrites only the words that contain the
// pair and applies the resulting frequency deltas. No global recount happens
// after the initial scan.
func Run(words []Word, table *symbols.Table, lengths []int, sc Scorer, cfg Config) Result {
	var res Result
	if table.Len() >= cfg.TargetLen {
		return res
	}
	counts, positions := CountPairs(words, cfg.Workers)
	sc.Init(words, table)

	sched := NewScheduler()
	lenOK := func(p Pair) bool {
		return cfg.MaxLen <= 0 || lengths[p.A]+lengths[p.B] <= cfg.MaxLen
	}
	for p, c := range counts {
		if c > cfg.MinFrequency && lenOK(p) {
			sched.Push(p, sc.Score(p, c), c)
		}
	}

	goal := cfg.TargetLen - table.Len()
	logEvery := goal / 10
	for table.Len() < cfg.TargetLen {
		job, ok := sched.Pop()
		if !ok {
			res.Exhausted = true
			break
		}
		live := counts[job.Pair]
		if live <= cfg.MinFrequency {
			continue // pair merged away or filtered since it was queued
		}
		if sched.Stale(job) || job.Count != live {
			sched.Push(job.Pair, sc.Score(job.Pair, live), live)
			continue
		}
		if score := sc.Score(job.Pair, live); score != job.Score {
			// Same frequency, drifted score (the denominator moved).
			sched.Push(job.Pair, score, live)
			continue
		}

		a, _ := table.Content(job.Pair.A)
		b, _ := table.Content(job.Pair.B)
		mergedContent := make([]byte, 0, len(a)+len(b))
		mergedContent = append(append(mergedContent, a...), b...)
		newID, added := table.Add(mergedContent)
		if added {
			lengths = append(lengths, lengths[job.Pair.A]+lengths[job.Pair.B])
		}

		sched.BeginRound()
		touched := make(map[Pair]struct{})
		var occurrences int64
		for wi := range positions[job.Pair] {
			deltas, n := words[wi].MergePair(job.Pair, newID)
			occurrences += n
			for _, d := range deltas {
				counts[d.Pair] += d.Diff
				sched.Touch(d.Pair)
				if d.Diff > 0 {
					set := positions[d.Pair]
					if set == nil {
						set = make(map[int]struct{})
						positions[d.Pair] = set
					}
					set[wi] = struct{}{}
					touched[d.Pair] = struct{}{}
				}
			}
		}
		delete(positions, job.Pair)
		sc.Applied(job.Pair, newID, occurrences)

		for p := range touched {
			if c := counts[p]; c > cfg.MinFrequency && lenOK(p) {
				sched.Push(p, sc.Score(p, c), c)
			}
		}

		res.Rules = append(res.Rules, api.Rule{Left: job.Pair.A, Right: job.Pair.B, NewID: newID})
		res.Rounds++
		if logEvery > 0 && res.Rounds%logEvery == 0 {
			klog.V(1).Infof("merge training: %d/%d rules (%d%%), queue %d",
				res.Rounds, goal, res.Rounds*100/goal, sched.Len())
		}
	}
	return res
}
