package transform

import (
	"sort"
	"strings"
)

// ColumnStats is the emptiness of one table column.
type ColumnStats struct {
	Name string
	// EmptyPercent is the share of rows whose cell is empty or whitespace,
	// rounded to two decimals.
	EmptyPercent float64
}

// Analysis summarizes a table for previews and debug logging.
type Analysis struct {
	RowCount int
	Columns  []ColumnStats
}

// Complete returns the number of columns with no empty cell.
func (a Analysis) Complete() int {
	n := 0
	for _, c := range a.Columns {
		if c.EmptyPercent == 0 {
			n++
		}
	}
	return n
}

// Empty returns the number of columns where every cell is empty.
func (a Analysis) Empty() int {
	n := 0
	for _, c := range a.Columns {
		if c.EmptyPercent == 100 {
			n++
		}
	}
	return n
}

// Analyze computes per-column emptiness, most empty column first and ties
// broken by column order.
func Analyze(t *Table) Analysis {
	stats := make([]ColumnStats, len(t.Columns))
	for i, name := range t.Columns {
		empty := 0
		for _, row := range t.Rows {
			if isEmptyCell(row[i]) {
				empty++
			}
		}

		var pct float64
		if len(t.Rows) > 0 {
			pct = float64(empty) / float64(len(t.Rows)) * 100
		}
		stats[i] = ColumnStats{Name: name, EmptyPercent: roundTo2Decimals(pct)}
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].EmptyPercent > stats[j].EmptyPercent
	})

	return Analysis{RowCount: len(t.Rows), Columns: stats}
}

func isEmptyCell(v string) bool {
	return strings.TrimSpace(v) == ""
}

// roundTo2Decimals rounds a float64 to 2 decimal places.
func roundTo2Decimals(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
