// Package persist provides the durable key-value stores backing the signal
// engine: one instance for scheduled signals, one for pending/active signals,
// both keyed by (strategy, symbol).
package persist

import (
	"context"
	"errors"

	"signal-core/internal/signal"
)

// ErrNotFound is returned by Read when no record exists for the key.
// Callers treat it as a normal empty state, not a failure.
var ErrNotFound = errors.New("signal record not found")

// Key identifies one engine slot.
type Key struct {
	StrategyID string
	Symbol     string
}

func (k Key) String() string {
	return k.StrategyID + ":" + k.Symbol
}

// Store is a crash-safe record store. Write must be atomic: a crash mid-write
// never leaves a corrupt or partially written record behind.
type Store interface {
	Read(ctx context.Context, key Key) (*signal.Record, error)
	Write(ctx context.Context, key Key, rec signal.Record) error
	Delete(ctx context.Context, key Key) error
}
