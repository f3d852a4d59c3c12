// Package symbols holds the bidirectional symbol table every algorithm trains
// into: raw content bytes on one side, dense integer identifiers on the other,
// with an optional score per identifier.
package symbols

// Table maps symbol content to dense identifiers and back. Identifiers are
// assigned 0, 1, 2, ... in insertion order and never reused; contents are
// unique. Lookups in both directions are O(1).
//
// A Table is not safe for concurrent mutation; once training finishes it is
// read-only and freely shareable.
type Table struct {
	contents [][]byte
	ids      map[string]int
	scores   []float64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{ids: make(map[string]int)}
}

// Add interns content and returns its identifier. When the content is already
// present the existing identifier is returned and added is false: contents
// stay unique no matter how many times they are derived.
func (t *Table) Add(content []byte) (id int, added bool) {
	if id, ok := t.ids[string(content)]; ok {
		return id, false
	}
	id = len(t.contents)
	owned := make([]byte, len(content))
	copy(owned, content)
	t.contents = append(t.contents, owned)
	t.scores = append(t.scores, 0)
	t.ids[string(owned)] = id
	return id, true
}

// AddString is Add for string content.
func (t *Table) AddString(content string) (id int, added bool) {
	if id, ok := t.ids[content]; ok {
		return id, false
	}
	id = len(t.contents)
	t.contents = append(t.contents, []byte(content))
	t.scores = append(t.scores, 0)
	t.ids[content] = id
	return id, true
}

// ID returns the identifier for content.
func (t *Table) ID(content []byte) (int, bool) {
	id, ok := t.ids[string(content)]
	return id, ok
}

// IDString is ID for string content.
func (t *Table) IDString(content string) (int, bool) {
	id, ok := t.ids[content]
	return id, ok
}

// Content returns the raw bytes behind an identifier. The returned slice is
// owned by the table and must not be modified.
func (t *Table) Content(id int) ([]byte, bool) {
	if id < 0 || id >= len(t.contents) {
		return nil, false
	}
	return t.contents[id], true
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.contents) }

// SetScore records a score for an identifier. Out-of-range ids are ignored.
func (t *Table) SetScore(id int, score float64) {
	if id >= 0 && id < len(t.scores) {
		t.scores[id] = score
	}
}

// Score returns the score recorded for an identifier, zero when none was set.
func (t *Table) Score(id int) float64 {
	if id < 0 || id >= len(t.scores) {
		return 0
	}
	return t.scores[id]
}
