package patient

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestExportFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	if got := ExportFilename(now); got != "patient_data_20240309_140507.csv" {
		t.Errorf("unexpected filename %q", got)
	}
}

func TestWriteCSV_HeaderAndQuoting(t *testing.T) {
	tbl := NewTable([]string{"ID", "Name", "Allergies", "Temperature"},
		Record{"ID": 1, "Name": "Ann", "Allergies": "pollen, dust", "Temperature": 98.6},
		Record{"ID": 2, "Name": `Bob "Bobby"`},
	)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "ID,Name,Allergies,Temperature\n" +
		"1,Ann,\"pollen, dust\",98.6\n" +
		"2,\"Bob \"\"Bobby\"\"\",,\n"
	if buf.String() != want {
		t.Errorf("unexpected csv:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	tbl := NewTable([]string{"ID", "Name", "Notes", "Temperature", "Edited_At"},
		Record{"ID": 1, "Name": "Ann", "Notes": "line one\nline two", "Temperature": 98.6, "Edited_At": "2024-01-02 03:04:05"},
		Record{"ID": 2, "Name": "Bob, Jr.", "Notes": `says "hi"`},
		Record{"ID": 3, "Name": " spaced "},
	)

	data, err := EncodeCSV(tbl)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := readCSV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(tbl, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCSV_EmptyTable(t *testing.T) {
	data, err := EncodeCSV(&Table{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := readCSV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("expected no rows, got %d", got.Len())
	}
}

func TestReadCSV_RaggedRows(t *testing.T) {
	if _, err := readCSV(strings.NewReader("ID,Name\n1\n")); err == nil {
		t.Fatal("expected error for a row with too few fields")
	}
}

// readCSV parses a CSV document with a header row back into a table. Cells
// are typed with ParseValue; empty cells are absent from the record.
func readCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patient csv: read header: %w", err)
	}

	t := NewTable(header)
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("patient csv: line %d: %w", line, err)
		}
		rec := make(Record, len(fields))
		for i, f := range fields {
			if v := ParseValue(f); v != nil {
				rec[header[i]] = v
			}
		}
		t.Append(rec)
	}
	return t, nil
}
