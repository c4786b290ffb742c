package strategy

import (
	"context"
	"time"

	"signal-core/internal/signal"
)

// ThresholdProposer is a minimal built-in proposer for demos and paper runs:
// every time the slot is idle it proposes a position around the current
// price with fixed percentage offsets. Real strategies live behind the same
// Proposer interface.
type ThresholdProposer struct {
	Side            signal.Side
	EntryOffsetPct  float64 // 0 = market entry; >0 schedules below (long) / above (short)
	TakeProfitPct   float64
	StopLossPct     float64
	LifetimeMinutes int
	Cooldown        time.Duration // minimum gap between proposals

	lastProposal time.Time
}

// Propose builds a proposal off the current price, honoring the cooldown.
func (p *ThresholdProposer) Propose(ctx context.Context, symbol string, price float64, now time.Time) (*signal.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, nil
	}
	if p.Cooldown > 0 && !p.lastProposal.IsZero() && now.Sub(p.lastProposal) < p.Cooldown {
		return nil, nil
	}
	p.lastProposal = now

	entry := price
	tp := price
	sl := price
	switch p.Side {
	case signal.SideShort:
		if p.EntryOffsetPct > 0 {
			entry = price * (1 + p.EntryOffsetPct/100)
		}
		tp = entry * (1 - p.TakeProfitPct/100)
		sl = entry * (1 + p.StopLossPct/100)
	default:
		if p.EntryOffsetPct > 0 {
			entry = price * (1 - p.EntryOffsetPct/100)
		}
		tp = entry * (1 + p.TakeProfitPct/100)
		sl = entry * (1 - p.StopLossPct/100)
	}

	prop := &signal.Proposal{
		Side:            p.Side,
		TakeProfit:      tp,
		StopLoss:        sl,
		LifetimeMinutes: p.LifetimeMinutes,
		Note:            "threshold",
	}
	if p.EntryOffsetPct > 0 {
		prop.EntryPrice = entry
	}
	return prop, nil
}
