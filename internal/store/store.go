package store

import (
	"context"

	"worldpanel/internal/model"
)

// Store persists each collector and publisher run.
type Store interface {
	CreateRun(ctx context.Context, kind model.RunKind) (model.Run, error)
	UpsertCells(ctx context.Context, runID string, cells []model.CellRecord) error
	UpsertTradeValues(ctx context.Context, runID string, records []model.TradeRecord) error
	// LatestCells returns one indicator from the most recent run of a kind.
	LatestCells(ctx context.Context, kind model.RunKind, indicator string) ([]model.CellRecord, error)
	Close() error
}

type NopStore struct{}

func (s *NopStore) CreateRun(ctx context.Context, kind model.RunKind) (model.Run, error) {
	_ = ctx
	return model.Run{Kind: kind}, nil
}

func (s *NopStore) UpsertCells(ctx context.Context, runID string, cells []model.CellRecord) error {
	_ = ctx
	_ = runID
	_ = cells
	return nil
}

func (s *NopStore) UpsertTradeValues(ctx context.Context, runID string, records []model.TradeRecord) error {
	_ = ctx
	_ = runID
	_ = records
	return nil
}

func (s *NopStore) LatestCells(ctx context.Context, kind model.RunKind, indicator string) ([]model.CellRecord, error) {
	_ = ctx
	_ = kind
	_ = indicator
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}

var _ Store = (*NopStore)(nil)
