package patient

import "strings"

// NextID returns 1 for an empty table or one without an identifier column,
// otherwise the largest numeric identifier plus one.
func NextID(t *Table) int64 {
	if t.Empty() {
		return 1
	}
	idCol, ok := t.IDColumn()
	if !ok {
		return 1
	}
	var max int64
	found := false
	for _, r := range t.Rows {
		id, ok := AsInt64(r[idCol])
		if !ok {
			continue
		}
		if !found || id > max {
			max, found = id, true
		}
	}
	if !found {
		return 1
	}
	return max + 1
}

// Create builds a record from fields plus the next identifier and appends it
// as the last row. Duplicate names are allowed.
//
// Field names that differ from an existing column only by case are written
// under the column's spelling, so "Name" lands in an existing "name" column.
func Create(t *Table, fields Record) Record {
	idCol, ok := t.IDColumn()
	if !ok {
		idCol = DefaultIDColumn
	}
	rec := make(Record, len(fields)+1)
	for k, v := range fields {
		if strings.EqualFold(k, "id") {
			continue
		}
		if col, ok := t.ColumnFold(k); ok {
			k = col
		}
		rec[k] = v
	}
	rec[idCol] = NextID(t)
	t.Append(rec)
	return rec
}
