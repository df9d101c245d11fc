package patient

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Audit columns stamped on every edited row.
const (
	ColEditedBy = "Edited_By"
	ColEditedAt = "Edited_At"

	// DefaultIDColumn is used when a table has no identifier column yet.
	DefaultIDColumn = "ID"
	// DefaultNameColumn is used when a table has no name column yet.
	DefaultNameColumn = "Name"

	// TimestampLayout is the Edited_At format: local wall clock, second resolution.
	TimestampLayout = "2006-01-02 15:04:05"
)

// Value is a single cell. Only nil, int64, float64 and string are stored;
// Normalize converts anything else a driver hands back.
type Value = any

// Record is one patient's open field-to-value mapping.
type Record map[string]Value

// Clone returns a shallow copy; cell values are immutable scalars.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is the ordered collection of patient records plus their column schema.
// Columns is the union of all fields ever present, in first-seen order.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// NewTable builds a table with the declared columns, then appends rows.
// Fields not in cols are added in first-seen order (alphabetical within a row).
func NewTable(cols []string, rows ...Record) *Table {
	t := &Table{}
	for _, c := range cols {
		t.addColumn(c)
	}
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table holds no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// HasColumn reports whether the exact column name is present.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ColumnFold returns the first column whose name equals name ignoring case.
func (t *Table) ColumnFold(name string) (string, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// IDColumn returns the identifier column (ID or id), if any.
func (t *Table) IDColumn() (string, bool) { return t.ColumnFold("id") }

// NameColumn returns the name column (Name or name), if any.
func (t *Table) NameColumn() (string, bool) { return t.ColumnFold("name") }

func (t *Table) addColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// Append adds r as the last row and extends the schema with any new fields.
func (t *Table) Append(r Record) {
	for k, v := range r {
		r[k] = Normalize(v)
	}
	for _, k := range sortedKeys(r, t.Columns) {
		t.addColumn(k)
	}
	t.Rows = append(t.Rows, r)
}

// Set overwrites a single cell, introducing the column if it is new.
func (t *Table) Set(pos int, col string, v Value) error {
	if pos < 0 || pos >= len(t.Rows) {
		return fmt.Errorf("%w: %d (rows=%d)", ErrPositionOutOfRange, pos, len(t.Rows))
	}
	t.addColumn(col)
	if t.Rows[pos] == nil {
		t.Rows[pos] = Record{}
	}
	t.Rows[pos][col] = Normalize(v)
	return nil
}

// Get returns the cell at (pos, col); missing cells read as nil.
func (t *Table) Get(pos int, col string) Value {
	if pos < 0 || pos >= len(t.Rows) {
		return nil
	}
	return t.Rows[pos][col]
}

// Clone deep-copies the table so callers can mutate it freely.
func (t *Table) Clone() *Table {
	if t == nil {
		return &Table{}
	}
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Record, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Cells returns row pos as a slice aligned with Columns.
func (t *Table) Cells(pos int) []Value {
	out := make([]Value, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = t.Rows[pos][c]
	}
	return out
}

// sortedKeys returns the keys of r, known columns first in their table order,
// then the remaining keys alphabetically.
func sortedKeys(r Record, known []string) []string {
	keys := make([]string, 0, len(r))
	seen := make(map[string]bool, len(r))
	for _, c := range known {
		if _, ok := r[c]; ok {
			keys = append(keys, c)
			seen[c] = true
		}
	}
	rest := make([]string, 0, len(r)-len(keys))
	for k := range r {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Normalize maps driver and JSON values onto the stored scalar set.
func Normalize(v Value) Value {
	switch x := v.(type) {
	case nil:
		return nil
	case int64, float64, string:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(TimestampLayout)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// AsInt64 interprets v as an integral number. Floats must be whole and
// strings must parse as integers.
func AsInt64(v Value) (int64, bool) {
	switch x := Normalize(v).(type) {
	case int64:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	}
	return 0, false
}

// AsString renders v the way it appears in CSV and in the editing grid.
func AsString(v Value) string {
	switch x := Normalize(v).(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// ParseValue turns user-typed text into the narrowest scalar: integer, then
// float, then string. Blank text is nil; non-numeric text is kept verbatim.
func ParseValue(s string) Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}
