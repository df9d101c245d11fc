package patient

import "time"

// EditSet holds sparse edits produced by the editing grid: grid row index to
// column to new value.
type EditSet map[int]map[string]Value

// ApplyEdits overwrites each (column, value) pair on the row at pos, adding
// columns that do not exist yet, then stamps Edited_By and Edited_At on that
// row. Values are taken as-is. Column names that differ from an existing
// column only by case are written under the column's spelling.
func ApplyEdits(t *Table, pos int, edits map[string]Value, editor string, now time.Time) error {
	if pos < 0 || pos >= t.Len() {
		return ErrPositionOutOfRange
	}
	for col, v := range edits {
		if c, ok := t.ColumnFold(col); ok {
			col = c
		}
		if err := t.Set(pos, col, v); err != nil {
			return err
		}
	}
	if err := t.Set(pos, ColEditedBy, editor); err != nil {
		return err
	}
	return t.Set(pos, ColEditedAt, now.Format(TimestampLayout))
}
