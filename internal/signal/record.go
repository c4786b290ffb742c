package signal

import "time"

// Record is the flat persisted shape shared by the schedule and pending
// stores. Every field must survive a write/read round trip losslessly.
type Record struct {
	StrategyID      string    `json:"strategy_id"`
	ExchangeID      string    `json:"exchange_id"`
	Symbol          string    `json:"symbol"`
	SignalID        string    `json:"signal_id"`
	Side            Side      `json:"side"`
	EntryPrice      float64   `json:"entry_price"`
	TakeProfit      float64   `json:"take_profit"`
	StopLoss        float64   `json:"stop_loss"`
	LifetimeMinutes int       `json:"lifetime_minutes"`
	Scheduled       bool      `json:"scheduled"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	PendingAt       time.Time `json:"pending_at"`
	Note            string    `json:"note,omitempty"`
}

// Record converts a signal to its persisted shape.
func (s Signal) Record() Record {
	return Record{
		StrategyID:      s.StrategyID,
		ExchangeID:      s.ExchangeID,
		Symbol:          s.Symbol,
		SignalID:        s.ID,
		Side:            s.Side,
		EntryPrice:      s.EntryPrice,
		TakeProfit:      s.TakeProfit,
		StopLoss:        s.StopLoss,
		LifetimeMinutes: s.LifetimeMinutes,
		Scheduled:       s.Scheduled,
		ScheduledAt:     s.ScheduledAt,
		PendingAt:       s.PendingAt,
		Note:            s.Note,
	}
}

// Signal rebuilds the in-memory signal from a persisted record.
func (r Record) Signal() Signal {
	return Signal{
		ID:              r.SignalID,
		StrategyID:      r.StrategyID,
		ExchangeID:      r.ExchangeID,
		Symbol:          r.Symbol,
		Side:            r.Side,
		EntryPrice:      r.EntryPrice,
		TakeProfit:      r.TakeProfit,
		StopLoss:        r.StopLoss,
		LifetimeMinutes: r.LifetimeMinutes,
		Scheduled:       r.Scheduled,
		ScheduledAt:     r.ScheduledAt,
		PendingAt:       r.PendingAt,
		Note:            r.Note,
	}
}
