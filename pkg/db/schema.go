package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS scheduled_signals (
    strategy_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    record TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(strategy_id, symbol)
);

CREATE TABLE IF NOT EXISTS pending_signals (
    strategy_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    record TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(strategy_id, symbol)
);

CREATE TABLE IF NOT EXISTS closed_trades (
    id TEXT PRIMARY KEY,
    strategy_id TEXT NOT NULL,
    exchange_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    entry_price REAL NOT NULL,
    exit_price REAL NOT NULL,
    adj_entry REAL NOT NULL,
    adj_exit REAL NOT NULL,
    pnl_pct REAL NOT NULL,
    reason TEXT NOT NULL,
    note TEXT,
    opened_at DATETIME NOT NULL,
    closed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cancelled_signals (
    id TEXT PRIMARY KEY,
    strategy_id TEXT NOT NULL,
    exchange_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    reason TEXT NOT NULL,
    scheduled_at DATETIME NOT NULL,
    cancelled_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_trades_strategy
    ON closed_trades(strategy_id, symbol, closed_at);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
