package panel

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Matrix is a table stripped of provenance. Missing cells are NaN.
type Matrix struct {
	Keys       []string
	Columns    []string
	Attributes []Attributes
	Data       [][]float64
}

// Values strips provenance from every column that is not derived.
func (t *Table) Values() Matrix {
	columns := make([]string, 0, len(t.columns))
	for _, column := range t.columns {
		if t.derived[column] {
			continue
		}
		columns = append(columns, column)
	}

	m := Matrix{
		Keys:       t.Keys(),
		Columns:    columns,
		Attributes: make([]Attributes, len(t.keys)),
		Data:       make([][]float64, len(t.keys)),
	}
	for i, key := range t.keys {
		r := t.rows[key]
		m.Attributes[i] = r.attrs
		values := make([]float64, len(columns))
		for j, column := range columns {
			cell := r.cells[column]
			if cell.Valid {
				values[j] = cell.Value
			} else {
				values[j] = math.NaN()
			}
		}
		m.Data[i] = values
	}
	return m
}

// ColumnMean averages the non-missing values of column j over the given rows.
// ok is false when no row has a value.
func (m Matrix) ColumnMean(rows []int, j int) (float64, bool) {
	present := make(stats.Float64Data, 0, len(rows))
	for _, i := range rows {
		if v := m.Data[i][j]; !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return 0, false
	}
	mean, err := stats.Mean(present)
	if err != nil {
		return 0, false
	}
	return mean, true
}

type ColumnCompleteness struct {
	Column  string
	Filled  int
	Percent float64
}

// Completeness reports the percentage of available data per column.
func Completeness(t *Table) []ColumnCompleteness {
	report := make([]ColumnCompleteness, 0, len(t.columns))
	for _, column := range t.columns {
		filled := t.Filled(column)
		percent := 0.0
		if t.Len() > 0 {
			percent = 100 * float64(filled) / float64(t.Len())
		}
		report = append(report, ColumnCompleteness{Column: column, Filled: filled, Percent: percent})
	}
	return report
}
