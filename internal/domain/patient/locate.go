package patient

import "strings"

// Match is a located row together with its position in the snapshot.
type Match struct {
	Position int    `json:"position"`
	Record   Record `json:"record"`
}

// Find returns the first row whose name equals name ignoring case and whose
// identifier equals id. The boolean is false when nothing matches.
func Find(t *Table, name string, id int64) (Record, int, bool) {
	positions := FindAll(t, name, id)
	if len(positions) == 0 {
		return nil, -1, false
	}
	return t.Rows[positions[0]], positions[0], true
}

// FindAll returns every matching position in table order. Uniqueness of the
// identifier is not enforced by the store, so more than one row may match.
func FindAll(t *Table, name string, id int64) []int {
	if t.Empty() {
		return nil
	}
	nameCol, ok := t.NameColumn()
	if !ok {
		return nil
	}
	idCol, ok := t.IDColumn()
	if !ok {
		return nil
	}

	var out []int
	for i, r := range t.Rows {
		if matches(r, nameCol, idCol, name, id) {
			out = append(out, i)
		}
	}
	return out
}

func matches(r Record, nameCol, idCol, name string, id int64) bool {
	rowName, ok := r[nameCol].(string)
	if !ok || !strings.EqualFold(rowName, name) {
		return false
	}
	rowID, ok := AsInt64(r[idCol])
	return ok && rowID == id
}
