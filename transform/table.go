// Package transform turns collection records into rectangular tables ready
// for flat-file export.
package transform

import (
	"strings"

	"github.com/helix-tools/etl-go/types"
)

// Table is a rectangular projection of a collection. Every row has exactly
// len(Columns) cells; cells for fields a record did not carry are "".
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the cells of the first column named name.
func (t *Table) Column(name string) ([]string, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// NormalizeColumn trims a field name, lower-cases it and replaces spaces
// with underscores. It is idempotent.
func NormalizeColumn(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, " ", "_")
}

// Transform builds a Table from records. Columns are the union of all record
// keys in first-seen order, normalized with NormalizeColumn. Values are not
// coerced; see types.FormatValue for how each cell is rendered.
//
// Keys that normalize to the same name stay separate columns.
func Transform(records []types.Record) *Table {
	var (
		keys  []string
		index = make(map[string]int)
	)

	for _, r := range records {
		for _, k := range r.Keys() {
			if _, seen := index[k]; seen {
				continue
			}
			index[k] = len(keys)
			keys = append(keys, k)
		}
	}

	table := &Table{
		Columns: make([]string, len(keys)),
		Rows:    make([][]string, 0, len(records)),
	}
	for i, k := range keys {
		table.Columns[i] = NormalizeColumn(k)
	}

	for _, r := range records {
		row := make([]string, len(keys))
		for _, k := range r.Keys() {
			v, _ := r.Value(k)
			row[index[k]] = v
		}
		table.Rows = append(table.Rows, row)
	}

	return table
}

// Records converts a table back into records keyed by column name, with every
// cell as a JSON string. Transform(t.Records()) yields a table equal to t when
// its column names are unique and already normalized.
func (t *Table) Records() []types.Record {
	out := make([]types.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := types.NewRecord()
		for i, c := range t.Columns {
			// a string always encodes
			_ = r.Set(c, row[i])
		}
		out = append(out, r)
	}
	return out
}
