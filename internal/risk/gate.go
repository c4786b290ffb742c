// Package risk holds the portfolio admission gate consulted before a signal
// is scheduled, opened, or activated.
package risk

import (
	"context"
	"sync"
	"time"

	"signal-core/internal/signal"
)

// CheckRequest carries everything the gate needs for a yes/no decision.
type CheckRequest struct {
	Symbol       string
	StrategyID   string
	ExchangeID   string
	Proposal     signal.Proposal
	CurrentPrice float64
	At           time.Time
}

// Gate is the only risk contract the engine depends on. CheckSignal answers
// admission; AddSignal/RemoveSignal maintain portfolio bookkeeping for
// signals that hold (or held) the one-per-key slot.
type Gate interface {
	CheckSignal(ctx context.Context, req CheckRequest) (bool, error)
	AddSignal(sig signal.Signal)
	RemoveSignal(sig signal.Signal)
}

// GateConfig bounds portfolio-wide exposure.
type GateConfig struct {
	MaxConcurrentSignals int // 0 = unlimited
	MaxPerSymbol         int // 0 = unlimited
}

// DefaultGateConfig returns the stock limits.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxConcurrentSignals: 10,
		MaxPerSymbol:         1,
	}
}

// PortfolioGate is the in-process Gate implementation: it tracks every
// signal currently occupying a slot and denies admission once the
// configured limits are reached.
type PortfolioGate struct {
	cfg  GateConfig
	mu   sync.RWMutex
	open map[string]signal.Signal // keyed by signal id
}

// NewPortfolioGate builds a gate with the given limits.
func NewPortfolioGate(cfg GateConfig) *PortfolioGate {
	return &PortfolioGate{
		cfg:  cfg,
		open: make(map[string]signal.Signal),
	}
}

// CheckSignal admits the proposal unless a portfolio limit is reached.
func (g *PortfolioGate) CheckSignal(ctx context.Context, req CheckRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.cfg.MaxConcurrentSignals > 0 && len(g.open) >= g.cfg.MaxConcurrentSignals {
		// Re-checks for a signal already holding a slot must not be
		// denied by its own reservation.
		if _, held := g.heldBy(req.StrategyID, req.Symbol); !held {
			return false, nil
		}
	}
	if g.cfg.MaxPerSymbol > 0 {
		count := 0
		held := false
		for _, s := range g.open {
			if s.Symbol != req.Symbol {
				continue
			}
			count++
			if s.StrategyID == req.StrategyID {
				held = true
			}
		}
		if count >= g.cfg.MaxPerSymbol && !held {
			return false, nil
		}
	}
	return true, nil
}

func (g *PortfolioGate) heldBy(strategyID, symbol string) (signal.Signal, bool) {
	for _, s := range g.open {
		if s.StrategyID == strategyID && s.Symbol == symbol {
			return s, true
		}
	}
	return signal.Signal{}, false
}

// AddSignal reserves a slot for the signal.
func (g *PortfolioGate) AddSignal(sig signal.Signal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open[sig.ID] = sig
}

// RemoveSignal releases the signal's slot. Unknown ids are ignored.
func (g *PortfolioGate) RemoveSignal(sig signal.Signal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.open, sig.ID)
}

// Open returns a snapshot of the signals currently holding slots.
func (g *PortfolioGate) Open() []signal.Signal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]signal.Signal, 0, len(g.open))
	for _, s := range g.open {
		out = append(out, s)
	}
	return out
}
