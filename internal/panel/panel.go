// Package panel holds the per-country table in which every value carries the
// label of the stage that produced it.
package panel

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Source records how a cell was populated.
type Source string

const (
	SourceRegionIncome Source = "Estimation based on region and income"
	SourceIncome       Source = "Estimation based on income"
	SourceRegion       Source = "Estimation based on region"
	SourceGlobal       Source = "Estimation based on all countries"
)

// Observed returns the label for a value read directly from a source in a
// given year, e.g. "WB data 2016".
func Observed(label string, year int) Source {
	return Source(fmt.Sprintf("%s data %d", label, year))
}

var (
	ErrCellFilled    = eris.New("panel: cell already filled")
	ErrMissingSource = eris.New("panel: value requires a source")
	ErrUnknownRow    = eris.New("panel: unknown row")
	ErrUnknownColumn = eris.New("panel: unknown column")
)

type Attributes struct {
	Name        string
	Region      string
	IncomeGroup string
}

func (a Attributes) merge(other Attributes) Attributes {
	if a.Name == "" {
		a.Name = other.Name
	}
	if a.Region == "" {
		a.Region = other.Region
	}
	if a.IncomeGroup == "" {
		a.IncomeGroup = other.IncomeGroup
	}
	return a
}

type Cell struct {
	Value  float64
	Source Source
	Valid  bool
}

type row struct {
	attrs Attributes
	cells map[string]Cell
}

// Table is keyed by country. Rows and columns keep insertion order.
// Transformations return new tables; Set and AddRow are for construction.
type Table struct {
	columns []string
	known   map[string]bool
	derived map[string]bool
	keys    []string
	rows    map[string]*row
}

func New(columns ...string) *Table {
	t := &Table{
		known:   make(map[string]bool),
		derived: make(map[string]bool),
		rows:    make(map[string]*row),
	}
	for _, column := range columns {
		t.AddColumn(column, false)
	}
	return t
}

// AddColumn registers a value column. Derived columns hold values without a
// provenance label and are exported without a source column.
func (t *Table) AddColumn(name string, derived bool) {
	if t.known[name] {
		if derived {
			t.derived[name] = true
		}
		return
	}
	t.known[name] = true
	t.columns = append(t.columns, name)
	if derived {
		t.derived[name] = true
	}
}

func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Table) HasColumn(name string) bool {
	return t.known[name]
}

func (t *Table) IsDerived(name string) bool {
	return t.derived[name]
}

func (t *Table) Keys() []string {
	return append([]string(nil), t.keys...)
}

func (t *Table) Len() int {
	return len(t.keys)
}

func (t *Table) HasRow(key string) bool {
	_, ok := t.rows[key]
	return ok
}

// AddRow adds a row, or fills in empty attributes of an existing one.
func (t *Table) AddRow(key string, attrs Attributes) {
	if existing, ok := t.rows[key]; ok {
		existing.attrs = existing.attrs.merge(attrs)
		return
	}
	t.keys = append(t.keys, key)
	t.rows[key] = &row{attrs: attrs, cells: make(map[string]Cell)}
}

func (t *Table) Attributes(key string) (Attributes, bool) {
	r, ok := t.rows[key]
	if !ok {
		return Attributes{}, false
	}
	return r.attrs, true
}

// Set fills a cell exactly once.
func (t *Table) Set(key, column string, value float64, source Source) error {
	r, ok := t.rows[key]
	if !ok {
		return eris.Wrapf(ErrUnknownRow, "set %s", key)
	}
	if !t.known[column] {
		return eris.Wrapf(ErrUnknownColumn, "set %s", column)
	}
	if source == "" && !t.derived[column] {
		return eris.Wrapf(ErrMissingSource, "set %s/%s", key, column)
	}
	if r.cells[column].Valid {
		return eris.Wrapf(ErrCellFilled, "set %s/%s", key, column)
	}
	if math.IsNaN(value) {
		return nil
	}
	r.cells[column] = Cell{Value: value, Source: source, Valid: true}
	return nil
}

// Rescale multiplies a filled cell in place and keeps its source. Missing
// cells are left alone.
func (t *Table) Rescale(key, column string, factor float64) {
	r, ok := t.rows[key]
	if !ok {
		return
	}
	cell := r.cells[column]
	if !cell.Valid {
		return
	}
	cell.Value *= factor
	r.cells[column] = cell
}

func (t *Table) Cell(key, column string) Cell {
	r, ok := t.rows[key]
	if !ok {
		return Cell{}
	}
	return r.cells[column]
}

func (t *Table) Value(key, column string) (float64, bool) {
	cell := t.Cell(key, column)
	return cell.Value, cell.Valid
}

// Filled counts the non-missing cells of a column.
func (t *Table) Filled(column string) int {
	count := 0
	for _, key := range t.keys {
		if t.rows[key].cells[column].Valid {
			count++
		}
	}
	return count
}

// Missing counts the missing cells across all columns.
func (t *Table) Missing() int {
	missing := 0
	for _, column := range t.columns {
		missing += len(t.keys) - t.Filled(column)
	}
	return missing
}

func (t *Table) Clone() *Table {
	out := New()
	for _, column := range t.columns {
		out.AddColumn(column, t.derived[column])
	}
	for _, key := range t.keys {
		r := t.rows[key]
		out.AddRow(key, r.attrs)
		for column, cell := range r.cells {
			out.rows[key].cells[column] = cell
		}
	}
	return out
}

// Drop returns a copy without the named columns.
func (t *Table) Drop(columns ...string) *Table {
	drop := make(map[string]bool, len(columns))
	for _, column := range columns {
		drop[column] = true
	}
	out := New()
	for _, column := range t.columns {
		if drop[column] {
			continue
		}
		out.AddColumn(column, t.derived[column])
	}
	for _, key := range t.keys {
		r := t.rows[key]
		out.AddRow(key, r.attrs)
		for column, cell := range r.cells {
			if drop[column] {
				continue
			}
			out.rows[key].cells[column] = cell
		}
	}
	return out
}

// Restrict returns a copy holding only the given rows, in the given order.
func (t *Table) Restrict(keys []string) *Table {
	out := New()
	for _, column := range t.columns {
		out.AddColumn(column, t.derived[column])
	}
	for _, key := range keys {
		r, ok := t.rows[key]
		if !ok {
			continue
		}
		out.AddRow(key, r.attrs)
		for column, cell := range r.cells {
			out.rows[key].cells[column] = cell
		}
	}
	return out
}

// Sorted orders rows by region, then country name, then key.
func (t *Table) Sorted() *Table {
	keys := t.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := t.rows[keys[i]].attrs, t.rows[keys[j]].attrs
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return keys[i] < keys[j]
	})
	return t.Restrict(keys)
}

// Regions lists the distinct non-empty regions in first-seen order.
func (t *Table) Regions() []string {
	seen := make(map[string]bool)
	regions := make([]string, 0)
	for _, key := range t.keys {
		region := t.rows[key].attrs.Region
		if region == "" || seen[region] {
			continue
		}
		seen[region] = true
		regions = append(regions, region)
	}
	return regions
}

// Combine merges two tables with first-non-missing-wins semantics: a cell
// already valid in primary is never replaced. Rows and columns are the union
// of both tables, primary order first.
func Combine(primary, fallback *Table) *Table {
	out := primary.Clone()
	for _, column := range fallback.columns {
		out.AddColumn(column, fallback.derived[column])
	}
	for _, key := range fallback.keys {
		src := fallback.rows[key]
		out.AddRow(key, src.attrs)
		dst := out.rows[key]
		for column, cell := range src.cells {
			if !cell.Valid || dst.cells[column].Valid {
				continue
			}
			dst.cells[column] = cell
		}
	}
	return out
}
