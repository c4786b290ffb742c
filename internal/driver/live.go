package driver

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/market"
)

// Live polls the market at a fixed cadence and drives one engine until
// stopped. Restore runs exactly once before the first tick so a restart
// resumes persisted signals instead of proposing over them.
type Live struct {
	engine *engine.Engine
	source market.Source
	bus    *events.Bus
	symbol string
	every  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	draining atomic.Bool
}

// NewLive builds a live driver ticking every `every` (minimum one second).
func NewLive(eng *engine.Engine, source market.Source, bus *events.Bus, symbol string, every time.Duration) *Live {
	if every < time.Second {
		every = time.Second
	}
	return &Live{
		engine: eng,
		source: source,
		bus:    bus,
		symbol: symbol,
		every:  every,
		stopCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or the context is cancelled. The in-flight
// tick always completes before Run returns, so stopping never tears a
// transition in half. A restore conflict is fatal for this run only.
func (l *Live) Run(ctx context.Context) error {
	price, err := priceWithRetry(ctx, l.source, l.symbol, 3)
	if err != nil {
		log.Printf("live %s: initial price unavailable, restoring on entry price: %v", l.symbol, err)
		price = 0
	}
	if err := l.engine.Restore(ctx, time.Now(), price); err != nil {
		return fmt.Errorf("restore %s: %w", l.symbol, err)
	}

	ticker := time.NewTicker(l.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopCh:
			return nil
		case <-ticker.C:
			l.step(ctx)
			if l.draining.Load() && l.engine.Idle() {
				return nil
			}
		}
	}
}

// Drain suppresses new proposals and lets any in-flight signal run to its
// natural closure; the loop exits once the engine is idle again.
func (l *Live) Drain() {
	l.engine.Suspend()
	l.draining.Store(true)
}

// step runs one tick. Transient faults are logged and skipped; the engine
// state is untouched and the next cadence retries.
func (l *Live) step(ctx context.Context) {
	price, err := l.source.AveragePrice(ctx, l.symbol)
	if err != nil {
		log.Printf("live %s: price fetch failed, skipping tick: %v", l.symbol, err)
		return
	}
	res, err := l.engine.Tick(ctx, time.Now(), price)
	if err != nil {
		log.Printf("live %s: tick aborted: %v", l.symbol, err)
		return
	}
	publishTick(l.bus, res)
}

// Stop requests a cooperative shutdown. Safe to call more than once and
// before Run; the loop exits after the current tick finishes.
func (l *Live) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
