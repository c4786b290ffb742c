// Package strategy defines the proposal boundary: how trade candidates reach
// the signal engine. Strategy logic itself stays behind the Proposer
// interface.
package strategy

import (
	"context"
	"time"

	"signal-core/internal/signal"
)

// Proposer emits trade candidates. A nil proposal means no trade this tick.
// The engine consults it only while its slot is idle.
type Proposer interface {
	Propose(ctx context.Context, symbol string, price float64, now time.Time) (*signal.Proposal, error)
}

// ProposerFunc adapts a function to the Proposer interface.
type ProposerFunc func(ctx context.Context, symbol string, price float64, now time.Time) (*signal.Proposal, error)

func (f ProposerFunc) Propose(ctx context.Context, symbol string, price float64, now time.Time) (*signal.Proposal, error) {
	return f(ctx, symbol, price, now)
}
