package merge

import (
	"unicode/utf8"

	"github.com/segtok/segtok/internal/symbols"
)

// CharWords builds one Word per span from per-rune symbol ids, with markerID
// appended as the final symbol of every word. Every rune must already be in
// the table.
func CharWords(spans []string, counts []int64, table *symbols.Table, markerID int) []Word {
	words := make([]Word, len(spans))
	for i, s := range spans {
		ids := make([]int, 0, utf8.RuneCountInString(s)+1)
		for _, r := range s {
			id, _ := table.IDString(string(r))
			ids = append(ids, id)
		}
		ids = append(ids, markerID)
		words[i] = Word{IDs: ids, Count: counts[i]}
	}
	return words
}
