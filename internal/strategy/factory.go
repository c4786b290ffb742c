package strategy

import (
	"context"
	"fmt"
	"time"

	"signal-core/internal/signal"
)

// New builds a named proposer from loosely typed parameters (as parsed from
// the YAML run file).
func New(name string, params map[string]any) (Proposer, error) {
	switch name {
	case "threshold":
		side := signal.Side(paramString(params, "side", string(signal.SideLong)))
		if !side.Valid() {
			return nil, fmt.Errorf("threshold proposer: invalid side %q", side)
		}
		return &ThresholdProposer{
			Side:            side,
			EntryOffsetPct:  paramFloat(params, "entry_offset_pct", 0),
			TakeProfitPct:   paramFloat(params, "take_profit_pct", 2),
			StopLossPct:     paramFloat(params, "stop_loss_pct", 1),
			LifetimeMinutes: paramInt(params, "lifetime_minutes", 240),
			Cooldown:        time.Duration(paramInt(params, "cooldown_minutes", 0)) * time.Minute,
		}, nil
	case "none", "":
		// A run without a proposer only monitors restored state.
		return ProposerFunc(func(context.Context, string, float64, time.Time) (*signal.Proposal, error) {
			return nil, nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown proposer %q", name)
	}
}

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func paramInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
