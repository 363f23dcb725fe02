// Package trade assembles bilateral trade records into a year x exporter x
// importer panel and derives per-exporter shares from it.
package trade

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"worldpanel/internal/model"
)

// Panel is dense over its years and countries. Missing cells hold NaN.
type Panel struct {
	years      []int
	countries  []string
	yearIdx    map[int]int
	countryIdx map[string]int
	data       [][][]float64
}

func NewPanel(years []int, countries []string) *Panel {
	p := &Panel{
		years:      append([]int(nil), years...),
		countries:  append([]string(nil), countries...),
		yearIdx:    make(map[int]int, len(years)),
		countryIdx: make(map[string]int, len(countries)),
	}
	for i, year := range p.years {
		p.yearIdx[year] = i
	}
	for i, country := range p.countries {
		p.countryIdx[country] = i
	}
	p.data = make([][][]float64, len(p.years))
	for y := range p.data {
		p.data[y] = make([][]float64, len(p.countries))
		for e := range p.data[y] {
			row := make([]float64, len(p.countries))
			for i := range row {
				row[i] = math.NaN()
			}
			p.data[y][e] = row
		}
	}
	return p
}

func (p *Panel) Years() []int {
	return append([]int(nil), p.years...)
}

func (p *Panel) Countries() []string {
	return append([]string(nil), p.countries...)
}

type FillReport struct {
	Placed  int
	Skipped int
	// Unknown lists reporter and partner names outside the panel's countries.
	Unknown []string
}

// Fill places every record at (year, reporter, partner). A later record for
// the same cell replaces an earlier one.
func (p *Panel) Fill(records []model.TradeRecord) FillReport {
	var report FillReport
	unknown := make(map[string]bool)
	for _, rec := range records {
		y, okY := p.yearIdx[rec.Year]
		e, okE := p.countryIdx[rec.Reporter]
		i, okI := p.countryIdx[rec.Partner]
		if !okE {
			unknown[rec.Reporter] = true
		}
		if !okI {
			unknown[rec.Partner] = true
		}
		if !okY || !okE || !okI || math.IsNaN(rec.ValueUSD) {
			report.Skipped++
			continue
		}
		p.data[y][e][i] = rec.ValueUSD
		report.Placed++
	}
	for name := range unknown {
		report.Unknown = append(report.Unknown, name)
	}
	sort.Strings(report.Unknown)

	if len(report.Unknown) > 0 {
		zap.L().Warn("trade: records outside the panel countries",
			zap.Strings("names", report.Unknown),
			zap.Int("skipped", report.Skipped),
		)
	}
	return report
}

func (p *Panel) Value(year int, exporter, importer string) (float64, bool) {
	y, okY := p.yearIdx[year]
	e, okE := p.countryIdx[exporter]
	i, okI := p.countryIdx[importer]
	if !okY || !okE || !okI {
		return 0, false
	}
	v := p.data[y][e][i]
	return v, !math.IsNaN(v)
}

// Row returns a copy of an exporter's values for a year, or nil.
func (p *Panel) Row(year int, exporter string) []float64 {
	y, okY := p.yearIdx[year]
	e, okE := p.countryIdx[exporter]
	if !okY || !okE {
		return nil
	}
	return append([]float64(nil), p.data[y][e]...)
}

// Shares returns a new panel in which each exporter's row for a year sums to
// one. Missing values count as zero; a row that sums to zero stays all zero.
func (p *Panel) Shares() *Panel {
	out := NewPanel(p.years, p.countries)
	for y := range p.data {
		for e, row := range p.data[y] {
			share := out.data[y][e]
			for i, v := range row {
				if math.IsNaN(v) {
					share[i] = 0
					continue
				}
				share[i] = v
			}
			sum := floats.Sum(share)
			if sum == 0 {
				continue
			}
			floats.Scale(1/sum, share)
		}
	}
	return out
}

// DataPoints counts, per exporter and year, the partners with a non-zero
// value.
type DataPoints struct {
	Years     []int
	Exporters []string
	// Counts is indexed [exporter][year].
	Counts [][]int
}

func (p *Panel) DataPoints() DataPoints {
	dp := DataPoints{
		Years:     p.Years(),
		Exporters: p.Countries(),
		Counts:    make([][]int, len(p.countries)),
	}
	for e := range p.countries {
		dp.Counts[e] = make([]int, len(p.years))
		for y := range p.years {
			for _, v := range p.data[y][e] {
				if !math.IsNaN(v) && v != 0 {
					dp.Counts[e][y]++
				}
			}
		}
	}
	return dp
}

// Flows is a dense exporter x importer matrix for one year.
type Flows struct {
	Year      int
	Exporters []string
	Importers []string
	Values    [][]float64
}

// Value returns the flow between two countries, zero when either is absent.
func (f Flows) Value(exporter, importer string) float64 {
	e := indexOf(f.Exporters, exporter)
	i := indexOf(f.Importers, importer)
	if e < 0 || i < 0 {
		return 0
	}
	return f.Values[e][i]
}

// Max returns the largest flow in the matrix.
func (f Flows) Max() float64 {
	largest := 0.0
	for _, row := range f.Values {
		if len(row) == 0 {
			continue
		}
		if m := floats.Max(row); m > largest {
			largest = m
		}
	}
	return largest
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// Matrix returns a year's values with missing cells as zero.
func (p *Panel) Matrix(year int) (Flows, bool) {
	y, ok := p.yearIdx[year]
	if !ok {
		return Flows{}, false
	}
	f := Flows{Year: year, Exporters: p.Countries(), Importers: p.Countries()}
	for _, row := range p.data[y] {
		values := make([]float64, len(row))
		for i, v := range row {
			if !math.IsNaN(v) {
				values[i] = v
			}
		}
		f.Values = append(f.Values, values)
	}
	return f, true
}

// Allocate spreads each exporter's total over its partners by the exporter's
// shares for the year. Exporters without a total are left out.
func (p *Panel) Allocate(year int, totals map[string]float64) (Flows, bool) {
	shares, ok := p.Shares().Matrix(year)
	if !ok {
		return Flows{}, false
	}
	out := Flows{Year: year, Importers: shares.Importers}
	for e, exporter := range shares.Exporters {
		total, ok := totals[exporter]
		if !ok || math.IsNaN(total) {
			continue
		}
		row := make([]float64, len(shares.Values[e]))
		floats.ScaleTo(row, total, shares.Values[e])
		out.Exporters = append(out.Exporters, exporter)
		out.Values = append(out.Values, row)
	}
	return out, true
}

// Records lists the filled cells, year by year.
func (p *Panel) Records(provider string) []model.TradeRecord {
	var out []model.TradeRecord
	for y, year := range p.years {
		for e, exporter := range p.countries {
			for i, importer := range p.countries {
				v := p.data[y][e][i]
				if math.IsNaN(v) {
					continue
				}
				out = append(out, model.TradeRecord{
					Provider: provider,
					Reporter: exporter,
					Partner:  importer,
					Year:     year,
					ValueUSD: v,
				})
			}
		}
	}
	return out
}
