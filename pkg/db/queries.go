package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Queries groups journal reads and writes.
type Queries struct {
	db *sql.DB
}

// InsertClosedTrade records a closed signal in the journal.
func (q *Queries) InsertClosedTrade(ctx context.Context, t ClosedTrade) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO closed_trades
			(id, strategy_id, exchange_id, symbol, side, entry_price, exit_price,
			 adj_entry, adj_exit, pnl_pct, reason, note, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.StrategyID, t.ExchangeID, t.Symbol, t.Side, t.EntryPrice, t.ExitPrice,
		t.AdjEntry, t.AdjExit, t.PnlPct, t.Reason, t.Note, t.OpenedAt, t.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert closed trade %s: %w", t.ID, err)
	}
	return nil
}

// InsertCancelledSignal records a cancelled scheduled signal.
func (q *Queries) InsertCancelledSignal(ctx context.Context, c CancelledSignal) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cancelled_signals
			(id, strategy_id, exchange_id, symbol, side, reason, scheduled_at, cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.StrategyID, c.ExchangeID, c.Symbol, c.Side, c.Reason, c.ScheduledAt, c.CancelledAt)
	if err != nil {
		return fmt.Errorf("insert cancelled signal %s: %w", c.ID, err)
	}
	return nil
}

// ListClosedTrades returns the most recent closed trades, newest first.
func (q *Queries) ListClosedTrades(ctx context.Context, limit int) ([]ClosedTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, strategy_id, exchange_id, symbol, side, entry_price, exit_price,
		       adj_entry, adj_exit, pnl_pct, reason, COALESCE(note, ''), opened_at, closed_at
		FROM closed_trades
		ORDER BY closed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed trades: %w", err)
	}
	defer rows.Close()

	var out []ClosedTrade
	for rows.Next() {
		var t ClosedTrade
		if err := rows.Scan(&t.ID, &t.StrategyID, &t.ExchangeID, &t.Symbol, &t.Side,
			&t.EntryPrice, &t.ExitPrice, &t.AdjEntry, &t.AdjExit, &t.PnlPct,
			&t.Reason, &t.Note, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats aggregates the closed trade journal.
func (q *Queries) Stats(ctx context.Context) (TradeStats, error) {
	var s TradeStats
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN pnl_pct > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(pnl_pct), 0)
		FROM closed_trades`).Scan(&s.Trades, &s.Wins, &s.TotalPnlPct)
	if err != nil {
		return TradeStats{}, fmt.Errorf("trade stats: %w", err)
	}
	return s, nil
}
