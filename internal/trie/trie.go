// Package trie implements a byte-wise prefix tree over vocabulary contents.
// It serves the greedy longest-match encoder and enumerates lattice edges for
// Viterbi search.
package trie

// node fans out over raw byte values; id is the terminal identifier or -1.
type node struct {
	children [256]*node
	id       int
}

func newNode() *node { return &node{id: -1} }

// Trie maps byte strings to integer identifiers.
type Trie struct {
	root *node
	max  int // longest inserted content, in bytes
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{root: newNode()}
}

// Insert adds content with its identifier. Inserting the same content again
// overwrites the identifier. Empty content is ignored.
func (t *Trie) Insert(content []byte, id int) {
	if len(content) == 0 {
		return
	}
	n := t.root
	for _, b := range content {
		child := n.children[b]
		if child == nil {
			child = newNode()
			n.children[b] = child
		}
		n = child
	}
	n.id = id
	if len(content) > t.max {
		t.max = len(content)
	}
}

// MaxLen returns the length in bytes of the longest inserted content.
func (t *Trie) MaxLen() int { return t.max }

// LongestMatch returns the longest prefix of data present in the trie and its
// identifier. A zero length means no prefix matched.
func (t *Trie) LongestMatch(data []byte) (length, id int) {
	n := t.root
	id = -1
	for i, b := range data {
		n = n.children[b]
		if n == nil {
			break
		}
		if n.id >= 0 {
			length, id = i+1, n.id
		}
	}
	return length, id
}

// WalkMatches calls fn for every prefix of data present in the trie, shortest
// first, with the match length in bytes and the identifier. Walking stops when
// fn returns false.
func (t *Trie) WalkMatches(data []byte, fn func(length, id int) bool) {
	n := t.root
	for i, b := range data {
		n = n.children[b]
		if n == nil {
			return
		}
		if n.id >= 0 {
			if !fn(i+1, n.id) {
				return
			}
		}
	}
}
