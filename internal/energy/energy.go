// Package energy serves energy-agency time series as a provider, so the same
// backfill used for the statistical API can fill missing years.
package energy

import (
	"context"
	"sort"
	"strings"

	"worldpanel/internal/providers"
)

const SourceLabel = "IEA"

// Row is one (product, flow, country) line of the wide time-series sheet.
type Row struct {
	Product string
	Flow    string
	Country string
	Years   map[int]float64
}

// Series selects a product and flow and names the panel column it fills.
type Series struct {
	Product string
	Flow    string
	Column  string
}

type Dataset struct {
	entities []string
	// index is keyed by product, flow, then country.
	index map[string]map[string]map[int]float64
}

func seriesKey(product, flow string) string {
	return strings.TrimSpace(product) + "\x00" + strings.TrimSpace(flow)
}

func NewDataset(rows []Row) *Dataset {
	d := &Dataset{index: make(map[string]map[string]map[int]float64)}
	seen := make(map[string]bool)
	for _, row := range rows {
		country := strings.TrimSpace(row.Country)
		if country == "" {
			continue
		}
		if !seen[country] {
			seen[country] = true
			d.entities = append(d.entities, country)
		}
		key := seriesKey(row.Product, row.Flow)
		byCountry, ok := d.index[key]
		if !ok {
			byCountry = make(map[string]map[int]float64)
			d.index[key] = byCountry
		}
		byCountry[country] = row.Years
	}
	sort.Strings(d.entities)
	return d
}

// Entities lists every country or region name in the sheet.
func (d *Dataset) Entities() []string {
	return append([]string(nil), d.entities...)
}

func (d *Dataset) Value(s Series, entity string, year int) (float64, bool) {
	years, ok := d.index[seriesKey(s.Product, s.Flow)][entity]
	if !ok {
		return 0, false
	}
	v, ok := years[year]
	return v, ok
}

// Source reads the requested series for a fixed set of entities. keys maps a
// sheet entity name to the row key it is reported under.
type Source struct {
	data   *Dataset
	series []Series
	keys   map[string]string
}

func NewSource(d *Dataset, series []Series, keys map[string]string) *Source {
	return &Source{data: d, series: series, keys: keys}
}

// Aggregates is a source over the entities that are not countries, such as
// "World" or "OECD Total", each keyed by its own name.
func (d *Dataset) Aggregates(series []Series, isCountry func(string) bool) *Source {
	keys := make(map[string]string)
	for _, entity := range d.entities {
		if isCountry(entity) {
			continue
		}
		keys[entity] = entity
	}
	return NewSource(d, series, keys)
}

func (s *Source) Name() string {
	return SourceLabel
}

func (s *Source) Columns() []string {
	columns := make([]string, 0, len(s.series))
	for _, series := range s.series {
		columns = append(columns, series.Column)
	}
	return columns
}

// Entities lists the row keys this source reports, sorted.
func (s *Source) Entities() []string {
	out := make([]string, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (s *Source) FetchYear(ctx context.Context, year int) (providers.Snapshot, error) {
	snapshot := providers.NewSnapshot(year)
	if err := ctx.Err(); err != nil {
		return snapshot, err
	}
	for entity, key := range s.keys {
		snapshot.Names[key] = entity
		for _, series := range s.series {
			if v, ok := s.data.Value(series, entity, year); ok {
				snapshot.Put(key, entity, series.Column, v)
			}
		}
	}
	return snapshot, nil
}

var _ providers.Provider = (*Source)(nil)
