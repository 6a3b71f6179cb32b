package flatten

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes a header row of t.Columns followed by one row per record.
// Columns a record lacks are left empty.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := writeRow(cw, w, t.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	row := make([]string, len(t.Columns))
	for i, rec := range t.Rows {
		for j, col := range t.Columns {
			if v, ok := rec.Get(col); ok {
				row[j] = v.CellText()
			} else {
				row[j] = ""
			}
		}
		if err := writeRow(cw, w, row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// writeRow writes one record through cw. csv.Writer renders a lone empty
// field as a blank line, which readers skip, so that case is written as a
// quoted empty field instead.
func writeRow(cw *csv.Writer, w io.Writer, fields []string) error {
	if len(fields) != 1 || fields[0] != "" {
		return cw.Write(fields)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}
