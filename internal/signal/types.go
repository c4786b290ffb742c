package signal

import (
	"time"
)

// Side is the direction of a proposed position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether the side is one of the two known directions.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// CloseReason explains why an active signal was closed.
type CloseReason string

const (
	CloseTakeProfit  CloseReason = "take_profit"
	CloseStopLoss    CloseReason = "stop_loss"
	CloseTimeExpired CloseReason = "time_expired"
)

// CancelReason explains why a scheduled signal never opened.
type CancelReason string

const (
	CancelStopBreach   CancelReason = "stop_breach"
	CancelTimeout      CancelReason = "timeout"
	CancelRiskRejected CancelReason = "risk_rejected"
	CancelExternal     CancelReason = "external"
)

// Proposal is a trade candidate produced by strategy logic.
// EntryPrice 0 means enter at the current market price.
// Immutable once submitted.
type Proposal struct {
	ID              string
	Side            Side
	EntryPrice      float64
	TakeProfit      float64
	StopLoss        float64
	LifetimeMinutes int
	Note            string
}

// Signal is a proposal augmented with identity and lifecycle timestamps.
// While Scheduled is true it is waiting for its entry price; once activated
// Scheduled flips to false and PendingAt is updated to the activation instant.
type Signal struct {
	ID              string
	StrategyID      string
	ExchangeID      string
	Symbol          string
	Side            Side
	EntryPrice      float64
	TakeProfit      float64
	StopLoss        float64
	LifetimeMinutes int
	Note            string
	Scheduled       bool
	ScheduledAt     time.Time
	PendingAt       time.Time
}

// Lifetime returns the maximum lifetime as a duration.
func (s Signal) Lifetime() time.Duration {
	return time.Duration(s.LifetimeMinutes) * time.Minute
}

// ExpiresAt is the instant after which an active signal closes as time_expired.
func (s Signal) ExpiresAt() time.Time {
	return s.PendingAt.Add(s.Lifetime())
}

// ClosedResult is the terminal outcome of an opened signal.
// Never persisted, never mutated after creation.
type ClosedResult struct {
	Signal
	Reason    CloseReason
	ClosedAt  time.Time
	ExitPrice float64
	AdjEntry  float64
	AdjExit   float64
	PnlPct    float64
}

// CancelledResult is the terminal outcome of a scheduled signal that never
// opened. Carries no PNL because no position ever existed.
type CancelledResult struct {
	Signal
	Reason      CancelReason
	CancelledAt time.Time
}
