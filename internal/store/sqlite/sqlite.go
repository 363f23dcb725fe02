package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"worldpanel/internal/model"
	"worldpanel/internal/store"
)

// timeLayout keeps created_at lexically ordered; RFC3339Nano trims zeros.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, eris.New("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) CreateRun(ctx context.Context, kind model.RunKind) (model.Run, error) {
	run := model.Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, created_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Kind), run.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return model.Run{}, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

func (s *Store) UpsertCells(ctx context.Context, runID string, cells []model.CellRecord) error {
	if len(cells) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT INTO panel_cells (run_id, country, indicator, value, source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, country, indicator)
		DO UPDATE SET
			value = excluded.value,
			source = excluded.source
	`, len(cells), func(stmt *sql.Stmt, i int) error {
		cell := cells[i]
		_, err := stmt.ExecContext(ctx, runID, cell.Country, cell.Indicator, cell.Value, cell.Source)
		return err
	})
}

func (s *Store) UpsertTradeValues(ctx context.Context, runID string, records []model.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT INTO trade_values (run_id, provider, reporter, partner, year, value_usd)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, reporter, partner, year)
		DO UPDATE SET
			provider = excluded.provider,
			value_usd = excluded.value_usd
	`, len(records), func(stmt *sql.Stmt, i int) error {
		rec := records[i]
		_, err := stmt.ExecContext(ctx, runID, rec.Provider, rec.Reporter, rec.Partner, rec.Year, rec.ValueUSD)
		return err
	})
}

// inTx prepares query once and executes it n times in one transaction.
func (s *Store) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return eris.Wrap(err, "sqlite: prepare")
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			_ = tx.Rollback()
			return eris.Wrap(err, "sqlite: exec")
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}

func (s *Store) LatestCells(ctx context.Context, kind model.RunKind, indicator string) ([]model.CellRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.country, c.indicator, c.value, c.source
		FROM panel_cells c
		WHERE c.indicator = ?
		  AND c.run_id = (
			SELECT id FROM runs WHERE kind = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT 1
		  )
		ORDER BY c.country
	`, indicator, string(kind))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query latest cells")
	}
	defer rows.Close()

	var cells []model.CellRecord
	for rows.Next() {
		var cell model.CellRecord
		if err := rows.Scan(&cell.Country, &cell.Indicator, &cell.Value, &cell.Source); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell")
		}
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate cells")
	}
	return cells, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS panel_cells (
			run_id TEXT NOT NULL REFERENCES runs(id),
			country TEXT NOT NULL,
			indicator TEXT NOT NULL,
			value REAL NOT NULL,
			source TEXT NOT NULL,
			PRIMARY KEY (run_id, country, indicator)
		);`,
		`CREATE TABLE IF NOT EXISTS trade_values (
			run_id TEXT NOT NULL REFERENCES runs(id),
			provider TEXT NOT NULL,
			reporter TEXT NOT NULL,
			partner TEXT NOT NULL,
			year INTEGER NOT NULL,
			value_usd REAL NOT NULL,
			PRIMARY KEY (run_id, reporter, partner, year)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_kind_created ON runs (kind, created_at);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return eris.Wrap(err, "sqlite: migrate")
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
