// Package driver hosts the execution drivers that feed the signal engine:
// a bounded backtest driver over historical candles and an unbounded live
// driver polling the market, plus the manager that owns running instances.
package driver

import (
	"context"
	"time"

	"signal-core/internal/events"
	"signal-core/internal/market"
	"signal-core/internal/signal"
)

// priceWithRetry asks the source a few times before giving up, so a
// transient feed error does not decide a signal's lifecycle.
func priceWithRetry(ctx context.Context, src market.Source, symbol string, attempts int) (float64, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
		price, err := src.AveragePrice(ctx, symbol)
		if err == nil {
			return price, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// publishTick fans a tick result out to the bus: the raw result on the tick
// topic, plus a dedicated topic per lifecycle transition.
func publishTick(bus *events.Bus, res signal.TickResult) {
	if bus == nil || res == nil {
		return
	}
	bus.Publish(events.EventTick, res)
	switch r := res.(type) {
	case signal.TickScheduled:
		bus.Publish(events.EventSignalScheduled, r)
	case signal.TickOpened:
		bus.Publish(events.EventSignalOpened, r)
	case signal.TickClosed:
		bus.Publish(events.EventSignalClosed, r)
	case signal.TickCancelled:
		bus.Publish(events.EventSignalCancelled, r)
		if r.Result.Reason == signal.CancelRiskRejected {
			bus.Publish(events.EventRiskAlert, r.Result)
		}
	}
}

// milestonePublisher adapts the engine milestone callback to the bus.
func milestonePublisher(bus *events.Bus) func(sig signal.Signal, level int, price float64) {
	if bus == nil {
		return nil
	}
	return func(sig signal.Signal, level int, price float64) {
		bus.Publish(events.EventSignalMilestone, events.Milestone{
			SignalID:   sig.ID,
			StrategyID: sig.StrategyID,
			Symbol:     sig.Symbol,
			Level:      level,
			Price:      price,
		})
	}
}

// restorePublisher adapts the engine restore callbacks to the bus.
func restorePublisher(bus *events.Bus) func(sig signal.Signal, price float64) {
	if bus == nil {
		return nil
	}
	return func(sig signal.Signal, price float64) {
		bus.Publish(events.EventSignalRestored, sig)
	}
}
