// Package export writes the panel and trade shares to multi-sheet workbooks.
package export

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"worldpanel/internal/panel"
	"worldpanel/internal/trade"
)

// MaxSheetName is the longest sheet name the workbook format accepts.
const MaxSheetName = 31

const (
	RegionalSheet   = "Regional Data"
	AggregatesSheet = "IEA Regions"
	DataPointsSheet = "DataPoints"
)

var sheetNameCleaner = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")")

// SheetName truncates a name to MaxSheetName characters and strips the
// characters sheet names may not contain.
func SheetName(name string) string {
	name = strings.TrimSpace(sheetNameCleaner.Replace(name))
	if name == "" {
		name = "Sheet"
	}
	if utf8.RuneCountInString(name) <= MaxSheetName {
		return name
	}
	return string([]rune(name)[:MaxSheetName])
}

// Workbook collects sheets; names that collide after truncation get a
// numeric suffix.
type Workbook struct {
	f       *excelize.File
	used    map[string]bool
	started bool
}

func NewWorkbook() *Workbook {
	return &Workbook{f: excelize.NewFile(), used: make(map[string]bool)}
}

func (w *Workbook) uniqueName(name string) string {
	base := SheetName(name)
	candidate := base
	for n := 2; w.used[strings.ToLower(candidate)]; n++ {
		suffix := " (" + strconv.Itoa(n) + ")"
		runes := []rune(base)
		if len(runes)+utf8.RuneCountInString(suffix) > MaxSheetName {
			runes = runes[:MaxSheetName-utf8.RuneCountInString(suffix)]
		}
		candidate = string(runes) + suffix
	}
	w.used[strings.ToLower(candidate)] = true
	return candidate
}

// addSheet creates a sheet and returns its final name.
func (w *Workbook) addSheet(name string) (string, error) {
	sheet := w.uniqueName(name)
	if !w.started {
		if err := w.f.SetSheetName("Sheet1", sheet); err != nil {
			return "", eris.Wrapf(err, "export: name sheet %q", sheet)
		}
		w.started = true
		return sheet, nil
	}
	if _, err := w.f.NewSheet(sheet); err != nil {
		return "", eris.Wrapf(err, "export: add sheet %q", sheet)
	}
	return sheet, nil
}

func (w *Workbook) writeRows(sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return eris.Wrap(err, "export: cell name")
		}
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			return eris.Wrapf(err, "export: write %q row %d", sheet, i+1)
		}
	}
	return nil
}

func value(c panel.Cell) interface{} {
	if !c.Valid {
		return nil
	}
	return c.Value
}

// AddRegions writes the leading sheet listing the regions of the panel.
func (w *Workbook) AddRegions(t *panel.Table) error {
	sheet, err := w.addSheet(RegionalSheet)
	if err != nil {
		return err
	}
	rows := [][]interface{}{{"Region"}}
	for _, region := range t.Regions() {
		rows = append(rows, []interface{}{region})
	}
	return w.writeRows(sheet, rows)
}

// AddPanel writes Region, IncomeGroup and then one sheet per column. Value
// columns get a source column; derived columns and the attributes do not.
// tabnames maps a column to its sheet name.
func (w *Workbook) AddPanel(t *panel.Table, tabnames map[string]string) error {
	attrs := []struct {
		name string
		get  func(panel.Attributes) string
	}{
		{"Region", func(a panel.Attributes) string { return a.Region }},
		{"IncomeGroup", func(a panel.Attributes) string { return a.IncomeGroup }},
	}
	for _, attr := range attrs {
		sheet, err := w.addSheet(attr.name)
		if err != nil {
			return err
		}
		rows := [][]interface{}{{"Code", "Country Data", attr.name}}
		for _, key := range t.Keys() {
			a, _ := t.Attributes(key)
			rows = append(rows, []interface{}{key, a.Name, attr.get(a)})
		}
		if err := w.writeRows(sheet, rows); err != nil {
			return err
		}
	}

	for _, column := range t.Columns() {
		name := column
		if tab, ok := tabnames[column]; ok && tab != "" {
			name = tab
		}
		sheet, err := w.addSheet(name)
		if err != nil {
			return err
		}
		if sheet != SheetName(name) {
			zap.L().Warn("sheet name collided after truncation",
				zap.String("column", column),
				zap.String("sheet", sheet),
			)
		}

		derived := t.IsDerived(column)
		head := []interface{}{"Code", "Country Data", column}
		if !derived {
			head = append(head, column+" source")
		}
		rows := [][]interface{}{head}
		for _, key := range t.Keys() {
			a, _ := t.Attributes(key)
			cell := t.Cell(key, column)
			row := []interface{}{key, a.Name, value(cell)}
			if !derived {
				row = append(row, string(cell.Source))
			}
			rows = append(rows, row)
		}
		if err := w.writeRows(sheet, rows); err != nil {
			return err
		}
	}
	return nil
}

// AddTable writes a whole table on one sheet, each value column followed by
// its source column.
func (w *Workbook) AddTable(name string, t *panel.Table) error {
	sheet, err := w.addSheet(name)
	if err != nil {
		return err
	}
	head := []interface{}{"Entity"}
	for _, column := range t.Columns() {
		head = append(head, column)
		if !t.IsDerived(column) {
			head = append(head, column+" source")
		}
	}
	rows := [][]interface{}{head}
	for _, key := range t.Keys() {
		row := []interface{}{key}
		for _, column := range t.Columns() {
			cell := t.Cell(key, column)
			row = append(row, value(cell))
			if !t.IsDerived(column) {
				row = append(row, string(cell.Source))
			}
		}
		rows = append(rows, row)
	}
	return w.writeRows(sheet, rows)
}

// AddShares writes one sheet per year with exporters as rows and importers
// as columns.
func (w *Workbook) AddShares(p *trade.Panel) error {
	countries := p.Countries()
	for _, year := range p.Years() {
		sheet, err := w.addSheet(strconv.Itoa(year))
		if err != nil {
			return err
		}
		head := []interface{}{"Exporter"}
		for _, c := range countries {
			head = append(head, c)
		}
		rows := [][]interface{}{head}
		for _, exporter := range countries {
			row := []interface{}{exporter}
			for _, v := range p.Row(year, exporter) {
				row = append(row, v)
			}
			rows = append(rows, row)
		}
		if err := w.writeRows(sheet, rows); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) AddDataPoints(dp trade.DataPoints) error {
	sheet, err := w.addSheet(DataPointsSheet)
	if err != nil {
		return err
	}
	head := []interface{}{"Exporter"}
	for _, year := range dp.Years {
		head = append(head, strconv.Itoa(year))
	}
	rows := [][]interface{}{head}
	for e, exporter := range dp.Exporters {
		row := []interface{}{exporter}
		for _, n := range dp.Counts[e] {
			row = append(row, n)
		}
		rows = append(rows, row)
	}
	return w.writeRows(sheet, rows)
}

// Sheets lists the sheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.f.GetSheetList()
}

func (w *Workbook) SaveAs(path string) error {
	defer w.f.Close() //nolint:errcheck
	if err := w.f.SaveAs(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// WritePanel writes the regional sheet, the panel and, when given, the
// energy aggregates.
func WritePanel(path string, t *panel.Table, tabnames map[string]string, aggregates *panel.Table) error {
	w := NewWorkbook()
	if err := w.AddRegions(t); err != nil {
		return err
	}
	if err := w.AddPanel(t, tabnames); err != nil {
		return err
	}
	if aggregates != nil && aggregates.Len() > 0 {
		if err := w.AddTable(AggregatesSheet, aggregates); err != nil {
			return err
		}
	}
	zap.L().Info("writing workbook", zap.String("path", path), zap.Int("sheets", len(w.Sheets())))
	return w.SaveAs(path)
}

// WriteShares writes the share panel year by year and the data point counts.
func WriteShares(path string, shares *trade.Panel) error {
	w := NewWorkbook()
	if err := w.AddShares(shares); err != nil {
		return err
	}
	if err := w.AddDataPoints(shares.DataPoints()); err != nil {
		return err
	}
	zap.L().Info("writing workbook", zap.String("path", path), zap.Int("sheets", len(w.Sheets())))
	return w.SaveAs(path)
}
