package market

import (
	"context"
	"fmt"
	"time"
)

// SliceSource serves a pre-loaded candle slice, for backtests over exported
// or captured data. Candles must be ordered by open time.
type SliceSource struct {
	Symbol string
	Bars   []Candle
}

// NewSliceSource wraps an ordered candle slice as a Source.
func NewSliceSource(symbol string, bars []Candle) *SliceSource {
	return &SliceSource{Symbol: symbol, Bars: bars}
}

// Candles returns bars for the symbol, honoring since and limit. The
// interval argument is ignored: the slice carries its own spacing.
func (s *SliceSource) Candles(ctx context.Context, symbol, interval string, since time.Time, limit int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol != s.Symbol {
		return nil, fmt.Errorf("slice source holds %s, not %s", s.Symbol, symbol)
	}
	bars := s.Bars
	if !since.IsZero() {
		for len(bars) > 0 && bars[0].OpenTime.Before(since) {
			bars = bars[1:]
		}
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[:limit]
	}
	return bars, nil
}

// AveragePrice returns the VWAP over the trailing default window.
func (s *SliceSource) AveragePrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if symbol != s.Symbol || len(s.Bars) == 0 {
		return 0, fmt.Errorf("no candles for %s", symbol)
	}
	window := s.Bars
	if len(window) > DefaultVWAPWindow {
		window = window[len(window)-DefaultVWAPWindow:]
	}
	return VWAP(window), nil
}
