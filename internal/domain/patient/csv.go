package patient

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// ExportFilename returns the download name for a CSV snapshot taken at now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("patient_data_%s.csv", now.Format("20060102_150405"))
}

// WriteCSV serialises t with a header row in column order. Missing cells are
// written as empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("patient csv: write header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for i := range t.Rows {
		for j, v := range t.Cells(i) {
			record[j] = AsString(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("patient csv: write row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("patient csv: flush: %w", err)
	}
	return nil
}

// EncodeCSV is WriteCSV into a byte slice.
func EncodeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
