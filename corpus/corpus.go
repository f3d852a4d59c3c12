// Package corpus feeds training: iterators over documents, readers for
// line-oriented and parquet corpora, and the scanner that pretokenizes
// documents into coalesced (span, multiplicity) pairs.
package corpus

import (
	"github.com/pkg/errors"

	"github.com/segtok/segtok/internal/parallel"
	"github.com/segtok/segtok/tokenizers/api"
)

// Iterator yields documents one at a time; ok is false when exhausted.
type Iterator func() (doc string, ok bool)

// FromSlice adapts an in-memory corpus to an Iterator.
func FromSlice(docs []string) Iterator {
	i := 0
	return func() (string, bool) {
		if i >= len(docs) {
			return "", false
		}
		doc := docs[i]
		i++
		return doc, true
	}
}

// batchSize is how many documents are buffered before a parallel
// pretokenize-and-count pass runs over the buffer.
const batchSize = 8192

// CountSpans pretokenizes every document and coalesces identical spans,
// returning them in first-appearance order with their multiplicities.
//
// Documents are consumed in batches; each batch is split over the fixed chunk
// grid and chunk results are folded in chunk order, so the span order and
// counts are identical for any worker count. An empty corpus yields empty
// results, not an error: callers decide whether that is fatal.
func CountSpans(next Iterator, split api.Splitter, workers int) (spans []string, counts []int64, err error) {
	index := make(map[string]int)
	buf := make([]string, 0, batchSize)
	processed := 0

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		type partial struct {
			order []string
			count map[string]int64
			err   error
		}
		partials := make([]partial, parallel.NumChunks(len(buf)))
		parallel.ForEachChunk(len(buf), workers, func(chunk, start, end int) {
			p := partial{count: make(map[string]int64)}
			for i := start; i < end; i++ {
				ss, serr := split.Split(buf[i])
				if serr != nil {
					p.err = errors.Wrapf(serr, "splitting document %d", processed+i)
					break
				}
				for _, s := range ss {
					if _, seen := p.count[s]; !seen {
						p.order = append(p.order, s)
					}
					p.count[s]++
				}
			}
			partials[chunk] = p
		})
		for _, p := range partials {
			if p.err != nil {
				return p.err
			}
			for _, s := range p.order {
				idx, seen := index[s]
				if !seen {
					idx = len(spans)
					index[s] = idx
					spans = append(spans, s)
					counts = append(counts, 0)
				}
				counts[idx] += p.count[s]
			}
		}
		processed += len(buf)
		buf = buf[:0]
		return nil
	}

	for {
		doc, ok := next()
		if !ok {
			break
		}
		buf = append(buf, doc)
		if len(buf) == batchSize {
			if err := flush(); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}
	return spans, counts, nil
}
