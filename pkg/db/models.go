package db

import "time"

// ClosedTrade is one journal row for a closed signal.
type ClosedTrade struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategy_id"`
	ExchangeID string    `json:"exchange_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	AdjEntry   float64   `json:"adj_entry"`
	AdjExit    float64   `json:"adj_exit"`
	PnlPct     float64   `json:"pnl_pct"`
	Reason     string    `json:"reason"`
	Note       string    `json:"note,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// CancelledSignal is one journal row for a signal that never opened.
type CancelledSignal struct {
	ID          string    `json:"id"`
	StrategyID  string    `json:"strategy_id"`
	ExchangeID  string    `json:"exchange_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Reason      string    `json:"reason"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// TradeStats is a simple aggregate over the closed trade journal.
type TradeStats struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	TotalPnlPct float64 `json:"total_pnl_pct"`
}
