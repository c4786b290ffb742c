package driver

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/market"
	"signal-core/internal/signal"
)

// Backtest replays a bounded ordered candle run through one engine. Each
// candle's close price and close time drive one tick; an opened signal is
// fast-forwarded through the remaining candles to its terminal state, so a
// finished backtest never leaves a live position behind.
type Backtest struct {
	engine *engine.Engine
	source market.Source
	bus    *events.Bus

	symbol   string
	interval string
	since    time.Time
	limit    int
}

// BacktestOptions bounds the candle run.
type BacktestOptions struct {
	Symbol   string
	Interval string
	Since    time.Time // zero = most recent window
	Limit    int
}

// NewBacktest builds a backtest driver over the given engine and source.
func NewBacktest(eng *engine.Engine, source market.Source, bus *events.Bus, opts BacktestOptions) *Backtest {
	if opts.Interval == "" {
		opts.Interval = "1m"
	}
	if opts.Limit <= 0 {
		opts.Limit = 500
	}
	return &Backtest{
		engine:   eng,
		source:   source,
		bus:      bus,
		symbol:   opts.Symbol,
		interval: opts.Interval,
		since:    opts.Since,
		limit:    opts.Limit,
	}
}

// Report summarizes a finished backtest.
type Report struct {
	Symbol    string                   `json:"symbol"`
	Interval  string                   `json:"interval"`
	Candles   int                      `json:"candles"`
	Ticks     int                      `json:"ticks"`
	Closed    []signal.ClosedResult    `json:"closed"`
	Cancelled []signal.CancelledResult `json:"cancelled"`
	TotalPnl  float64                  `json:"total_pnl_pct"`
	Wins      int                      `json:"wins"`
	Losses    int                      `json:"losses"`
}

func (r *Report) record(res signal.TickResult) {
	switch v := res.(type) {
	case signal.TickClosed:
		r.Closed = append(r.Closed, v.Result)
		r.TotalPnl += v.Result.PnlPct
		if v.Result.PnlPct >= 0 {
			r.Wins++
		} else {
			r.Losses++
		}
	case signal.TickCancelled:
		r.Cancelled = append(r.Cancelled, v.Result)
	}
}

// Run executes the whole candle run and returns the report. The context
// cancels the replay between candles; a persistence fault aborts the run.
func (b *Backtest) Run(ctx context.Context) (*Report, error) {
	candles, err := b.source.Candles(ctx, b.symbol, b.interval, b.since, b.limit)
	if err != nil {
		return nil, fmt.Errorf("load backtest candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles for %s %s", b.symbol, b.interval)
	}

	report := &Report{Symbol: b.symbol, Interval: b.interval, Candles: len(candles)}
	for i := 0; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c := candles[i]
		res, err := b.engine.Tick(ctx, c.CloseTime, c.Close)
		if err != nil {
			return report, fmt.Errorf("tick at candle %d: %w", i, err)
		}
		report.Ticks++
		publishTick(b.bus, res)
		report.record(res)

		if _, opened := res.(signal.TickOpened); opened {
			// Resolve the position against the rest of the run. Exhaustion
			// closes as time_expired at the final candle.
			ffRes, consumed, err := b.engine.FastForward(ctx, c.CloseTime, c.Close, candles[i+1:])
			if err != nil {
				return report, fmt.Errorf("fast-forward at candle %d: %w", i, err)
			}
			report.Ticks += consumed
			publishTick(b.bus, ffRes)
			report.record(ffRes)
			i += consumed
		}
	}

	// A signal still waiting for its entry when the data ends is cancelled
	// so the stores finish the run empty.
	last := candles[len(candles)-1]
	res, err := b.engine.CancelScheduled(ctx, last.CloseTime, last.Close)
	if err != nil {
		return report, fmt.Errorf("cancel leftover scheduled signal: %w", err)
	}
	if res != nil {
		publishTick(b.bus, res)
		report.record(res)
	}

	log.Printf("backtest %s %s: %d candles, %d closed, %d cancelled, pnl %.4f%%",
		b.symbol, b.interval, report.Candles, len(report.Closed), len(report.Cancelled), report.TotalPnl)
	return report, nil
}
