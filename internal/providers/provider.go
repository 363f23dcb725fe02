package providers

import (
	"context"
	"sort"
)

// Provider returns a cross-country snapshot of its series for one year.
// Name is the label used in source tags, e.g. "WB data 2016".
type Provider interface {
	Name() string
	Columns() []string
	FetchYear(ctx context.Context, year int) (Snapshot, error)
}

// Snapshot holds one year of values keyed by country identifier, then column.
type Snapshot struct {
	Year   int
	Names  map[string]string
	Values map[string]map[string]float64
}

func NewSnapshot(year int) Snapshot {
	return Snapshot{
		Year:   year,
		Names:  make(map[string]string),
		Values: make(map[string]map[string]float64),
	}
}

func (s Snapshot) Put(country, name, column string, value float64) {
	if name != "" {
		if _, ok := s.Names[country]; !ok {
			s.Names[country] = name
		}
	}
	values, ok := s.Values[country]
	if !ok {
		values = make(map[string]float64)
		s.Values[country] = values
	}
	values[column] = value
}

// Countries lists every identifier seen, with or without values, sorted.
func (s Snapshot) Countries() []string {
	seen := make(map[string]struct{}, len(s.Values)+len(s.Names))
	out := make([]string, 0, len(s.Values)+len(s.Names))
	for country := range s.Names {
		seen[country] = struct{}{}
		out = append(out, country)
	}
	for country := range s.Values {
		if _, ok := seen[country]; ok {
			continue
		}
		out = append(out, country)
	}
	sort.Strings(out)
	return out
}
