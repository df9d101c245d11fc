package patient

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleTable() *Table {
	return NewTable([]string{"ID", "Name", "BMI"},
		Record{"ID": 1, "Name": "Ann", "BMI": 22},
		Record{"ID": 2, "Name": "Bob", "BMI": 30},
		Record{"ID": 3, "Name": "ann", "BMI": 19},
	)
}

func TestFind_CaseInsensitiveName(t *testing.T) {
	tbl := sampleTable()

	rec, pos, ok := Find(tbl, "ANN", 1)
	if !ok {
		t.Fatal("expected a match")
	}
	if pos != 0 || rec["BMI"] != int64(22) {
		t.Errorf("unexpected match at %d: %v", pos, rec)
	}
}

func TestFind_RequiresBothKeys(t *testing.T) {
	tbl := sampleTable()

	tests := []struct {
		name    string
		patient string
		id      int64
	}{
		{"wrong id", "Ann", 2},
		{"wrong name", "Carl", 1},
		{"partial name", "An", 1},
		{"name with spaces", " Ann", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, pos, ok := Find(tbl, tt.patient, tt.id); ok || pos != -1 {
				t.Errorf("expected no match, got position %d", pos)
			}
		})
	}
}

func TestFind_FirstMatchWins(t *testing.T) {
	tbl := NewTable([]string{"ID", "Name"},
		Record{"ID": 5, "Name": "Dup", "Note": "first"},
		Record{"ID": 5, "Name": "dup", "Note": "second"},
	)

	rec, pos, ok := Find(tbl, "DUP", 5)
	if !ok || pos != 0 || rec["Note"] != "first" {
		t.Errorf("expected first row, got %d %v", pos, rec)
	}
	if diff := cmp.Diff([]int{0, 1}, FindAll(tbl, "dup", 5)); diff != "" {
		t.Errorf("FindAll mismatch (-want +got):\n%s", diff)
	}
}

func TestFind_LowercaseKeyColumns(t *testing.T) {
	tbl := NewTable([]string{"id", "name"}, Record{"id": "7", "name": "Eve"})

	if _, pos, ok := Find(tbl, "eve", 7); !ok || pos != 0 {
		t.Errorf("expected match on lowercase columns with text id, got %d %v", pos, ok)
	}
}

func TestFind_FloatIDs(t *testing.T) {
	tbl := NewTable([]string{"ID", "Name"},
		Record{"ID": 4.0, "Name": "Whole"},
		Record{"ID": 4.5, "Name": "Frac"},
	)
	if _, _, ok := Find(tbl, "whole", 4); !ok {
		t.Error("expected integral float id to match")
	}
	if _, _, ok := Find(tbl, "frac", 4); ok {
		t.Error("expected fractional id never to match")
	}
}

func TestFindAll_NoKeyColumns(t *testing.T) {
	if got := FindAll(&Table{}, "Ann", 1); got != nil {
		t.Errorf("expected nil for empty table, got %v", got)
	}
	noID := NewTable([]string{"Name"}, Record{"Name": "Ann"})
	if got := FindAll(noID, "Ann", 1); got != nil {
		t.Errorf("expected nil without id column, got %v", got)
	}
	noName := NewTable([]string{"ID"}, Record{"ID": 1})
	if got := FindAll(noName, "Ann", 1); got != nil {
		t.Errorf("expected nil without name column, got %v", got)
	}
}
