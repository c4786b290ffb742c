package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"signal-core/internal/signal"
)

// Table names the SQLiteStore may target; see pkg/db schema.
const (
	TableScheduled = "scheduled_signals"
	TablePending   = "pending_signals"
)

// SQLiteStore persists records as JSON rows in a sqlite table keyed by
// (strategy_id, symbol). Atomicity comes from sqlite's WAL journal, so the
// temp-file discipline of FileStore is unnecessary here.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore wraps an open handle. The table must be one of the two
// known signal tables.
func NewSQLiteStore(db *sql.DB, table string) (*SQLiteStore, error) {
	if table != TableScheduled && table != TablePending {
		return nil, fmt.Errorf("unknown signal table %q", table)
	}
	return &SQLiteStore{db: db, table: table}, nil
}

// Read loads the record for key, or ErrNotFound.
func (s *SQLiteStore) Read(ctx context.Context, key Key) (*signal.Record, error) {
	query := fmt.Sprintf("SELECT record FROM %s WHERE strategy_id = ? AND symbol = ?", s.table)
	var raw string
	err := s.db.QueryRowContext(ctx, query, key.StrategyID, key.Symbol).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", key, err)
	}
	var rec signal.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return &rec, nil
}

// Write upserts the record for key.
func (s *SQLiteStore) Write(ctx context.Context, key Key, rec signal.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (strategy_id, symbol, record, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(strategy_id, symbol) DO UPDATE SET
			record = excluded.record,
			updated_at = CURRENT_TIMESTAMP`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key.StrategyID, key.Symbol, string(data)); err != nil {
		return fmt.Errorf("write record %s: %w", key, err)
	}
	return nil
}

// Delete removes the record for key; a missing row is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE strategy_id = ? AND symbol = ?", s.table)
	if _, err := s.db.ExecContext(ctx, query, key.StrategyID, key.Symbol); err != nil {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	return nil
}
