// Package sheets reads the spreadsheet inputs: regional metadata, the
// indicator catalogue, energy-agency time series and bilateral trade.
package sheets

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // rows to skip before the header
}

// ReadXLSX reads one sheet and returns all rows as string slices.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: open %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: %s", path)
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

// rowToStrings reads numeric cells by their stored value so that number
// formats such as "0%" or "#,##0.00" do not leak into the text.
func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell.Type() == xlsx.CellTypeNumeric && !cell.IsTime() {
			if v, err := cell.Float(); err == nil {
				cells[j] = strconv.FormatFloat(v, 'f', -1, 64)
				continue
			}
		}
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

// header indexes the columns of a header row by name.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		if _, ok := h[name]; !ok && name != "" {
			h[name] = i
		}
	}
	return h
}

// require returns the indexes of the named columns or a schema error.
func (h header) require(names ...string) ([]int, error) {
	idx := make([]int, 0, len(names))
	for _, name := range names {
		i, ok := h[name]
		if !ok {
			return nil, eris.Errorf("missing column %q", name)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// number parses a numeric cell. Placeholders such as "..", "x" or "c" and
// empty cells are not numbers.
func number(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
