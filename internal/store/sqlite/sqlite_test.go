package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldpanel/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "worldpanel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestLatestCells(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateRun(ctx, model.RunPanel)
	require.NoError(t, err)
	require.NoError(t, s.UpsertCells(ctx, first.ID, []model.CellRecord{
		{Country: "NLD", Indicator: "CO2 emissions (kt)", Value: 1, Source: "WB data 2013"},
	}))

	second, err := s.CreateRun(ctx, model.RunPanel)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	require.NoError(t, s.UpsertCells(ctx, second.ID, []model.CellRecord{
		{Country: "NLD", Indicator: "CO2 emissions (kt)", Value: 2, Source: "WB data 2014"},
		{Country: "BEL", Indicator: "CO2 emissions (kt)", Value: 3, Source: "Estimation based on region"},
		{Country: "BEL", Indicator: "GDP", Value: 4, Source: "WB data 2014"},
	}))
	// upsert replaces the value of an existing cell
	require.NoError(t, s.UpsertCells(ctx, second.ID, []model.CellRecord{
		{Country: "NLD", Indicator: "CO2 emissions (kt)", Value: 5, Source: "WB data 2015"},
	}))

	cells, err := s.LatestCells(ctx, model.RunPanel, "CO2 emissions (kt)")
	require.NoError(t, err)
	assert.Equal(t, []model.CellRecord{
		{Country: "BEL", Indicator: "CO2 emissions (kt)", Value: 3, Source: "Estimation based on region"},
		{Country: "NLD", Indicator: "CO2 emissions (kt)", Value: 5, Source: "WB data 2015"},
	}, cells)

	cells, err = s.LatestCells(ctx, model.RunTrade, "CO2 emissions (kt)")
	require.NoError(t, err)
	assert.Empty(t, cells)
}

func TestUpsertTradeValues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, err := s.CreateRun(ctx, model.RunTrade)
	require.NoError(t, err)

	records := []model.TradeRecord{
		{Provider: "Trade.xlsx", Reporter: "Netherlands", Partner: "Belgium", Year: 1995, ValueUSD: 30},
		{Provider: "Trade.xlsx", Reporter: "Netherlands", Partner: "Belgium", Year: 1995, ValueUSD: 31},
	}
	require.NoError(t, s.UpsertTradeValues(ctx, run.ID, records))

	var count int
	var value float64
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*), MAX(value_usd) FROM trade_values`).Scan(&count, &value))
	assert.Equal(t, 1, count)
	assert.Equal(t, 31.0, value)
}
