package patient

import (
	"strconv"
	"strings"
)

// ColumnKind is the storage type inferred for a column on Save.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindReal
)

// InferKinds picks a storage type per column: integer when every non-empty
// cell is an integer, real when every non-empty cell is numeric, text
// otherwise. Columns with no values at all are text.
func InferKinds(t *Table) []ColumnKind {
	kinds := make([]ColumnKind, len(t.Columns))
	for i, col := range t.Columns {
		kinds[i] = inferKind(t, col)
	}
	return kinds
}

func inferKind(t *Table, col string) ColumnKind {
	seen := false
	kind := KindInteger
	for _, r := range t.Rows {
		switch Normalize(r[col]).(type) {
		case nil:
			continue
		case int64:
		case float64:
			kind = KindReal
		default:
			return KindText
		}
		seen = true
	}
	if !seen {
		return KindText
	}
	return kind
}

// Coerce converts v to the Go type expected for a column of kind k.
func Coerce(v Value, k ColumnKind) Value {
	v = Normalize(v)
	if v == nil {
		return nil
	}
	switch k {
	case KindInteger:
		if n, ok := AsInt64(v); ok {
			return n
		}
	case KindReal:
		switch x := v.(type) {
		case int64:
			return float64(x)
		case float64:
			return x
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f
			}
		}
	}
	return AsString(v)
}

// quoteIdent double-quotes an SQL identifier; valid for both PostgreSQL and
// SQLite.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
