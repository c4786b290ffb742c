package signal

import (
	"fmt"
	"math"
)

// Validation rule identifiers, reported inside Violation.Rule.
const (
	RuleSchema     = "schema"
	RulePositivity = "positivity"
	RuleDirection  = "direction"
	RuleMinProfit  = "min_profit_distance"
	RuleStopRange  = "stop_loss_range"
	RuleLifetime   = "lifetime_limit"
)

// Violation describes a single failed validation rule with the offending
// values, for logging and diagnostics.
type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return v.Rule + ": " + v.Detail
}

// Limits bounds the economic shape of acceptable proposals. Injected
// explicitly so tests can vary it per case.
type Limits struct {
	MinProfitPct       float64 // minimum TP distance from entry, percent
	MinStopPct         float64 // minimum SL distance from entry, percent
	MaxStopPct         float64 // maximum SL distance from entry, percent
	MaxLifetimeMinutes int     // ceiling on proposal lifetime
}

// DefaultLimits returns the stock validation thresholds.
func DefaultLimits() Limits {
	return Limits{
		MinProfitPct:       0.5,
		MinStopPct:         0.5,
		MaxStopPct:         20,
		MaxLifetimeMinutes: 1440,
	}
}

// Validate checks a proposal against the current price in strict stage
// order, short-circuiting at the first failing stage. An empty result means
// the proposal is sound. The risk gate is a separate admission step owned by
// the engine, not part of this pure check.
func Validate(p Proposal, currentPrice float64, scheduled bool, lim Limits) []Violation {
	if v := checkSchema(p); len(v) > 0 {
		return v
	}
	entry := p.EntryPrice
	if entry == 0 {
		entry = currentPrice
	}
	if v := checkPositivity(p, entry, currentPrice); len(v) > 0 {
		return v
	}
	if v := checkDirection(p, entry, currentPrice, scheduled); len(v) > 0 {
		return v
	}
	if v := checkMinProfit(p, entry, lim); len(v) > 0 {
		return v
	}
	if v := checkStopRange(p, entry, lim); len(v) > 0 {
		return v
	}
	if v := checkLifetime(p, lim); len(v) > 0 {
		return v
	}
	return nil
}

func checkSchema(p Proposal) []Violation {
	var out []Violation
	if !p.Side.Valid() {
		out = append(out, Violation{RuleSchema, fmt.Sprintf("side %q is not long or short", p.Side)})
	}
	for name, val := range map[string]float64{
		"entry_price": p.EntryPrice,
		"take_profit": p.TakeProfit,
		"stop_loss":   p.StopLoss,
	} {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			out = append(out, Violation{RuleSchema, fmt.Sprintf("%s is not finite: %v", name, val)})
		}
	}
	return out
}

func checkPositivity(p Proposal, entry, currentPrice float64) []Violation {
	var out []Violation
	for name, val := range map[string]float64{
		"entry_price":   entry,
		"take_profit":   p.TakeProfit,
		"stop_loss":     p.StopLoss,
		"current_price": currentPrice,
	} {
		if !(val > 0) || math.IsInf(val, 0) {
			out = append(out, Violation{RulePositivity, fmt.Sprintf("%s must be a positive finite number, got %v", name, val)})
		}
	}
	return out
}

func checkDirection(p Proposal, entry, currentPrice float64, scheduled bool) []Violation {
	switch p.Side {
	case SideLong:
		if !(p.TakeProfit > entry && entry > p.StopLoss) {
			return []Violation{{RuleDirection, fmt.Sprintf("long requires TP > entry > SL, got TP=%v entry=%v SL=%v", p.TakeProfit, entry, p.StopLoss)}}
		}
		if !scheduled && !(currentPrice > p.StopLoss && currentPrice < p.TakeProfit) {
			return []Violation{{RuleDirection, fmt.Sprintf("current price %v must lie strictly between SL %v and TP %v", currentPrice, p.StopLoss, p.TakeProfit)}}
		}
	case SideShort:
		if !(p.StopLoss > entry && entry > p.TakeProfit) {
			return []Violation{{RuleDirection, fmt.Sprintf("short requires SL > entry > TP, got SL=%v entry=%v TP=%v", p.StopLoss, entry, p.TakeProfit)}}
		}
		if !scheduled && !(currentPrice < p.StopLoss && currentPrice > p.TakeProfit) {
			return []Violation{{RuleDirection, fmt.Sprintf("current price %v must lie strictly between TP %v and SL %v", currentPrice, p.TakeProfit, p.StopLoss)}}
		}
	}
	return nil
}

func checkMinProfit(p Proposal, entry float64, lim Limits) []Violation {
	var distPct float64
	if p.Side == SideLong {
		distPct = (p.TakeProfit - entry) / entry * 100
	} else {
		distPct = (entry - p.TakeProfit) / entry * 100
	}
	if distPct < lim.MinProfitPct {
		return []Violation{{RuleMinProfit, fmt.Sprintf("TP distance %.4f%% is below minimum %.4f%%", distPct, lim.MinProfitPct)}}
	}
	return nil
}

func checkStopRange(p Proposal, entry float64, lim Limits) []Violation {
	distPct := math.Abs(entry-p.StopLoss) / entry * 100
	if distPct < lim.MinStopPct || distPct > lim.MaxStopPct {
		return []Violation{{RuleStopRange, fmt.Sprintf("SL distance %.4f%% is outside [%.4f%%, %.4f%%]", distPct, lim.MinStopPct, lim.MaxStopPct)}}
	}
	return nil
}

func checkLifetime(p Proposal, lim Limits) []Violation {
	if p.LifetimeMinutes <= 0 {
		return []Violation{{RuleLifetime, fmt.Sprintf("lifetime must be positive, got %d minutes", p.LifetimeMinutes)}}
	}
	if p.LifetimeMinutes > lim.MaxLifetimeMinutes {
		return []Violation{{RuleLifetime, fmt.Sprintf("lifetime %d minutes exceeds ceiling %d", p.LifetimeMinutes, lim.MaxLifetimeMinutes)}}
	}
	return nil
}
