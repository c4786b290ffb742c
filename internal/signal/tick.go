package signal

import "time"

// TickKind discriminates TickResult variants.
type TickKind string

const (
	KindIdle      TickKind = "idle"
	KindScheduled TickKind = "scheduled"
	KindOpened    TickKind = "opened"
	KindActive    TickKind = "active"
	KindClosed    TickKind = "closed"
	KindCancelled TickKind = "cancelled"
)

// TickHeader carries the fields common to every tick result.
type TickHeader struct {
	StrategyID string    `json:"strategy_id"`
	ExchangeID string    `json:"exchange_id"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	At         time.Time `json:"at"`
}

// TickResult is the tagged outcome of one engine evaluation. Each variant
// carries only the fields relevant to its state; consumers switch on Kind.
type TickResult interface {
	Kind() TickKind
	Header() TickHeader
	tickResult()
}

// TickIdle means no signal exists for the key. Violations, when present,
// explain why the latest proposal produced nothing.
type TickIdle struct {
	TickHeader
	Violations []Violation `json:"violations,omitempty"`
}

// TickScheduled means a signal is waiting for its entry price.
type TickScheduled struct {
	TickHeader
	Signal Signal `json:"signal"`
}

// TickOpened means a position was opened on this evaluation.
type TickOpened struct {
	TickHeader
	Signal Signal `json:"signal"`
}

// TickActive means an open position is being monitored. PercentTP and
// PercentSL report 0-100 linear progress toward each target; the
// non-relevant one is pinned at 0.
type TickActive struct {
	TickHeader
	Signal    Signal  `json:"signal"`
	PercentTP float64 `json:"percent_tp"`
	PercentSL float64 `json:"percent_sl"`
}

// TickClosed carries the terminal result of an opened signal.
type TickClosed struct {
	TickHeader
	Result ClosedResult `json:"result"`
}

// TickCancelled carries the terminal result of a scheduled signal.
type TickCancelled struct {
	TickHeader
	Result CancelledResult `json:"result"`
}

func (t TickIdle) Kind() TickKind      { return KindIdle }
func (t TickScheduled) Kind() TickKind { return KindScheduled }
func (t TickOpened) Kind() TickKind    { return KindOpened }
func (t TickActive) Kind() TickKind    { return KindActive }
func (t TickClosed) Kind() TickKind    { return KindClosed }
func (t TickCancelled) Kind() TickKind { return KindCancelled }

func (t TickIdle) Header() TickHeader      { return t.TickHeader }
func (t TickScheduled) Header() TickHeader { return t.TickHeader }
func (t TickOpened) Header() TickHeader    { return t.TickHeader }
func (t TickActive) Header() TickHeader    { return t.TickHeader }
func (t TickClosed) Header() TickHeader    { return t.TickHeader }
func (t TickCancelled) Header() TickHeader { return t.TickHeader }

func (TickIdle) tickResult()      {}
func (TickScheduled) tickResult() {}
func (TickOpened) tickResult()    {}
func (TickActive) tickResult()    {}
func (TickClosed) tickResult()    {}
func (TickCancelled) tickResult() {}
