package transform

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes the header row followed by one line per row. There is no
// index column and lines end with "\n".
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// CSV returns the table serialized with WriteCSV.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses CSV produced by WriteCSV. Empty input yields an empty table.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	lines, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	table := &Table{Columns: []string{}, Rows: [][]string{}}
	if len(lines) == 0 {
		return table, nil
	}

	table.Columns = lines[0]
	for i, line := range lines[1:] {
		if len(line) != len(table.Columns) {
			return nil, fmt.Errorf("csv row %d has %d fields, header has %d", i+1, len(line), len(table.Columns))
		}
		table.Rows = append(table.Rows, line)
	}
	return table, nil
}
