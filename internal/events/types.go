package events

// Event enumerates high-level topics inside the signal core.
type Event string

const (
	EventTick            Event = "tick"
	EventSignalScheduled Event = "signal.scheduled"
	EventSignalOpened    Event = "signal.opened"
	EventSignalClosed    Event = "signal.closed"
	EventSignalCancelled Event = "signal.cancelled"
	EventSignalMilestone Event = "signal.milestone"
	EventSignalRestored  Event = "signal.restored"
	EventRiskAlert       Event = "risk_alert"
)

// Milestone is the payload for EventSignalMilestone. Level is a signed
// multiple of ten: positive levels track progress toward take-profit,
// negative toward stop-loss.
type Milestone struct {
	SignalID   string  `json:"signal_id"`
	StrategyID string  `json:"strategy_id"`
	Symbol     string  `json:"symbol"`
	Level      int     `json:"level"`
	Price      float64 `json:"price"`
}
