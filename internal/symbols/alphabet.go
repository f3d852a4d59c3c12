package symbols

import "sort"

// SortedAlphabet interns every distinct rune across the spans in content
// order, so identifier order equals content order for the base alphabet and
// smallest-pair tie-breaks land on the smallest contents.
func SortedAlphabet(spans []string) *Table {
	seen := make(map[rune]struct{})
	var runes []rune
	for _, s := range spans {
		for _, r := range s {
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				runes = append(runes, r)
			}
		}
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	t := NewTable()
	for _, r := range runes {
		t.AddString(string(r))
	}
	return t
}
