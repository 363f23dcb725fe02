// Package backfill walks a provider backwards in time, filling cells the most
// recent year left empty.
package backfill

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"worldpanel/internal/panel"
	"worldpanel/internal/providers"
)

var ErrInvalidRange = eris.New("backfill: invalid year range")

// Range is the [From, To] window of a backfill. From itself is never fetched:
// the walk stops at From+1.
type Range struct {
	From int
	To   int
}

func (r Range) Validate() error {
	if r.To <= 0 || r.From > r.To {
		return eris.Wrapf(ErrInvalidRange, "from %d to %d", r.From, r.To)
	}
	return nil
}

// Years lists the fetched years in fetch order.
func (r Range) Years() []int {
	years := []int{r.To}
	for year := r.To - 1; year > r.From; year-- {
		years = append(years, year)
	}
	return years
}

// Run fetches r.To first and merges each older year underneath it, so a cell
// keeps the value of the most recent year that reported one.
func Run(ctx context.Context, p providers.Provider, r Range) (*panel.Table, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "backfill"), zap.String("source", p.Name()))

	var filled *panel.Table
	for _, year := range r.Years() {
		snapshot, err := p.FetchYear(ctx, year)
		if err != nil {
			return nil, eris.Wrapf(err, "backfill: fetch %s %d", p.Name(), year)
		}
		tagged, err := Tag(snapshot, p.Name(), p.Columns())
		if err != nil {
			return nil, err
		}
		if filled == nil {
			filled = tagged
		} else {
			filled = panel.Combine(filled, tagged)
		}
		log.Info("year merged",
			zap.Int("year", year),
			zap.Int("countries", len(snapshot.Countries())),
			zap.Int("missing", filled.Missing()),
		)
	}
	return filled, nil
}

// Tag turns a snapshot into a table whose every value is labelled
// "<label> data <year>".
func Tag(s providers.Snapshot, label string, columns []string) (*panel.Table, error) {
	t := panel.New(columns...)
	source := panel.Observed(label, s.Year)
	for _, country := range s.Countries() {
		t.AddRow(country, panel.Attributes{Name: s.Names[country]})
		for column, value := range s.Values[country] {
			if !t.HasColumn(column) {
				t.AddColumn(column, false)
			}
			if err := t.Set(country, column, value, source); err != nil {
				return nil, eris.Wrap(err, "backfill: tag snapshot")
			}
		}
	}
	return t, nil
}
