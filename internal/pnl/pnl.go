// Package pnl computes fee and slippage adjusted profit for closed signals.
// All functions are pure; percent inputs are expressed as percentages
// (0.1 means 0.1%).
package pnl

import (
	"signal-core/internal/signal"
)

// Costs holds the per-side fee and slippage percentages.
type Costs struct {
	FeePct      float64
	SlippagePct float64
}

func (c Costs) rate() float64 {
	return (c.FeePct + c.SlippagePct) / 100
}

// AdjustedEntry returns the effective entry price after one side of fees and
// slippage. Longs pay up on entry, shorts receive less.
func AdjustedEntry(entry float64, side signal.Side, c Costs) float64 {
	if side == signal.SideShort {
		return entry * (1 - c.rate())
	}
	return entry * (1 + c.rate())
}

// AdjustedExit returns the effective exit price after one side of fees and
// slippage. Longs receive less on exit, shorts pay up.
func AdjustedExit(exit float64, side signal.Side, c Costs) float64 {
	if side == signal.SideShort {
		return exit * (1 + c.rate())
	}
	return exit * (1 - c.rate())
}

// Percent returns the adjusted profit/loss percentage for a round trip.
// Stable under repeated evaluation and finite for finite positive inputs.
func Percent(entry, exit float64, side signal.Side, c Costs) float64 {
	adjEntry := AdjustedEntry(entry, side, c)
	adjExit := AdjustedExit(exit, side, c)
	pct := (adjExit - adjEntry) / adjEntry * 100
	if side == signal.SideShort {
		return -pct
	}
	return pct
}
