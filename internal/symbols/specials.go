package symbols

// InjectSpecials appends special tokens to the table in the given order, so
// their identifiers immediately follow whatever training derived. A token
// whose content already exists is skipped: the earlier entry wins and keeps
// its identifier. Returns the identifiers actually added and the skipped
// tokens.
func InjectSpecials(t *Table, tokens []string) (ids []int, skipped []string) {
	for _, tok := range tokens {
		id, added := t.AddString(tok)
		if !added {
			skipped = append(skipped, tok)
			continue
		}
		ids = append(ids, id)
	}
	return ids, skipped
}
