package sheets

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"worldpanel/internal/energy"
	"worldpanel/internal/model"
)

// LoadRegions reads the regional metadata sheet: country code, country name,
// region and income group, after one header row.
func LoadRegions(path string) ([]model.Country, error) {
	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	if err != nil {
		return nil, err
	}
	countries := make([]model.Country, 0, len(rows))
	for i, row := range rows {
		code := strings.ToUpper(cell(row, 0))
		if code == "" {
			continue
		}
		if len(row) < 2 {
			return nil, eris.Errorf("sheets: %s row %d: expected code and name", path, i+2)
		}
		countries = append(countries, model.Country{
			Code:        code,
			Name:        cell(row, 1),
			Region:      cell(row, 2),
			IncomeGroup: cell(row, 3),
		})
	}
	return countries, nil
}

// LoadIndicators reads the indicator catalogue with columns Indicator,
// Description and Tabname.
func LoadIndicators(path, sheet string) ([]model.Indicator, error) {
	rows, err := ReadXLSX(path, XLSXOptions{SheetName: sheet})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("sheets: %s: empty indicator sheet", path)
	}
	idx, err := newHeader(rows[0]).require("Indicator", "Description", "Tabname")
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: %s", path)
	}
	indicators := make([]model.Indicator, 0, len(rows)-1)
	for _, row := range rows[1:] {
		code := cell(row, idx[0])
		if code == "" {
			continue
		}
		indicators = append(indicators, model.Indicator{
			Code:        code,
			Description: cell(row, idx[1]),
			Tabname:     cell(row, idx[2]),
		})
	}
	return indicators, nil
}

// LoadEnergy reads the wide energy-agency sheet. The first row is a title;
// the second holds Product, Flow, Country and one column per year.
func LoadEnergy(path, sheet string) ([]energy.Row, error) {
	rows, err := ReadXLSX(path, XLSXOptions{SheetName: sheet, SkipRows: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("sheets: %s: empty energy sheet", path)
	}
	idx, err := newHeader(rows[0]).require("Product", "Flow", "Country")
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: %s", path)
	}
	years := make(map[int]int)
	for i, name := range rows[0] {
		if year, err := strconv.Atoi(name); err == nil {
			years[i] = year
		}
	}
	if len(years) == 0 {
		return nil, eris.Errorf("sheets: %s: no year columns", path)
	}

	out := make([]energy.Row, 0, len(rows)-1)
	for _, row := range rows[1:] {
		r := energy.Row{
			Product: cell(row, idx[0]),
			Flow:    cell(row, idx[1]),
			Country: cell(row, idx[2]),
			Years:   make(map[int]float64),
		}
		if r.Country == "" {
			continue
		}
		for i, year := range years {
			if v, ok := number(cell(row, i)); ok {
				r.Years[year] = v
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadEnergySeries reads the headerless series request list: product, flow
// and the panel column to fill.
func LoadEnergySeries(path string) ([]energy.Series, error) {
	rows, err := ReadXLSX(path, XLSXOptions{})
	if err != nil {
		return nil, err
	}
	series := make([]energy.Series, 0, len(rows))
	for i, row := range rows {
		s := energy.Series{Product: cell(row, 0), Flow: cell(row, 1), Column: cell(row, 2)}
		if s.Product == "" && s.Flow == "" && s.Column == "" {
			continue
		}
		if s.Product == "" || s.Flow == "" || s.Column == "" {
			return nil, eris.Errorf("sheets: %s row %d: expected product, flow and column", path, i+1)
		}
		series = append(series, s)
	}
	return series, nil
}

var tradeYearColumn = regexp.MustCompile(`^(\d{4}) in 1000 USD\s*$`)

// LoadTrade reads bilateral trade rows with ReporterName, PartnerName and one
// "<year> in 1000 USD" column per year. Values are multiplied by multiplier.
func LoadTrade(path string, multiplier float64) ([]model.TradeRecord, []int, error) {
	rows, err := ReadXLSX(path, XLSXOptions{})
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, eris.Errorf("sheets: %s: empty trade sheet", path)
	}
	idx, err := newHeader(rows[0]).require("ReporterName", "PartnerName")
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sheets: %s", path)
	}
	if multiplier == 0 {
		multiplier = 1
	}

	type yearColumn struct {
		index int
		year  int
	}
	var columns []yearColumn
	var years []int
	for i, name := range rows[0] {
		m := tradeYearColumn.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		columns = append(columns, yearColumn{index: i, year: year})
		years = append(years, year)
	}
	if len(columns) == 0 {
		return nil, nil, eris.Errorf("sheets: %s: no year columns", path)
	}

	var records []model.TradeRecord
	for _, row := range rows[1:] {
		reporter, partner := cell(row, idx[0]), cell(row, idx[1])
		if reporter == "" || partner == "" {
			continue
		}
		for _, column := range columns {
			v, ok := number(cell(row, column.index))
			if !ok {
				continue
			}
			records = append(records, model.TradeRecord{
				Provider: path,
				Reporter: reporter,
				Partner:  partner,
				Year:     column.year,
				ValueUSD: v * multiplier,
			})
		}
	}
	return records, years, nil
}
