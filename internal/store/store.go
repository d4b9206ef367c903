// Package store persists closed trades to sqlite so runs can be
// inspected and compared after the fact.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quantforge/stratlab/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_trades (
	run_id        TEXT NOT NULL,
	order_id      TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	entry_price   REAL NOT NULL,
	exit_price    REAL NOT NULL,
	position_size REAL NOT NULL,
	profit        REAL NOT NULL,
	success       INTEGER NOT NULL,
	exit_reason   TEXT NOT NULL,
	opened_at     TEXT NOT NULL,
	closed_at     TEXT NOT NULL,
	PRIMARY KEY (run_id, order_id)
);
CREATE INDEX IF NOT EXISTS idx_closed_trades_run ON closed_trades (run_id);
`

// TradeStore is a sqlite-backed archive of closed trades.
type TradeStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*TradeStore, error) {
	if path == "" {
		return nil, fmt.Errorf("trade store path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade store: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping trade store: %w", err)
	}

	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure trade store schema: %w", err)
	}
	return &TradeStore{db: db}, nil
}

func (s *TradeStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const insertTrade = `
INSERT INTO closed_trades (
	run_id, order_id, symbol, side, entry_price, exit_price,
	position_size, profit, success, exit_reason, opened_at, closed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SaveTrade writes one closed trade under a run id.
func (s *TradeStore) SaveTrade(ctx context.Context, runID string, t models.ClosedTrade) error {
	_, err := s.db.ExecContext(ctx, insertTrade,
		runID, t.OrderID, t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice,
		t.PositionSize, t.Profit, boolToInt(t.Success), string(t.ExitReason),
		t.OpenedAt.UTC().Format(time.RFC3339Nano), t.ClosedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", t.OrderID, err)
	}
	return nil
}

// SaveTrades writes a run's trades in one transaction.
func (s *TradeStore) SaveTrades(ctx context.Context, runID string, trades []models.ClosedTrade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, t := range trades {
		_, err := tx.ExecContext(ctx, insertTrade,
			runID, t.OrderID, t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice,
			t.PositionSize, t.Profit, boolToInt(t.Success), string(t.ExitReason),
			t.OpenedAt.UTC().Format(time.RFC3339Nano), t.ClosedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to save trade %s: %w", t.OrderID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trades: %w", err)
	}
	return nil
}

// ListTrades returns a run's trades in close order.
func (s *TradeStore) ListTrades(ctx context.Context, runID string) ([]models.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, symbol, side, entry_price, exit_price, position_size,
		       profit, success, exit_reason, opened_at, closed_at
		FROM closed_trades WHERE run_id = ? ORDER BY closed_at, order_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []models.ClosedTrade
	for rows.Next() {
		var (
			t                  models.ClosedTrade
			side, reason       string
			success            int
			openedAt, closedAt string
		)
		err := rows.Scan(&t.OrderID, &t.Symbol, &side, &t.EntryPrice, &t.ExitPrice,
			&t.PositionSize, &t.Profit, &success, &reason, &openedAt, &closedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.Side(side)
		t.ExitReason = models.ExitReason(reason)
		t.Success = success != 0
		if t.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
			return nil, fmt.Errorf("failed to parse opened_at for %s: %w", t.OrderID, err)
		}
		if t.ClosedAt, err = time.Parse(time.RFC3339Nano, closedAt); err != nil {
			return nil, fmt.Errorf("failed to parse closed_at for %s: %w", t.OrderID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
