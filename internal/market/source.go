// Package market defines the price source boundary the execution drivers
// consume: historical candles plus a volume-weighted current price.
package market

import (
	"context"
	"time"
)

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// DefaultVWAPWindow is the trailing candle count used for the reference price.
const DefaultVWAPWindow = 5

// Source supplies candle history and the canonical current price.
type Source interface {
	// Candles returns ordered OHLCV bars for the symbol. A zero since means
	// "most recent"; limit bounds the result.
	Candles(ctx context.Context, symbol, interval string, since time.Time, limit int) ([]Candle, error)

	// AveragePrice returns the volume-weighted price over a trailing window
	// of one-minute candles.
	AveragePrice(ctx context.Context, symbol string) (float64, error)
}

// VWAP computes the volume-weighted average close over the candles. When
// total volume is zero it falls back to a simple close-price average.
func VWAP(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var weighted, volume, sum float64
	for _, c := range candles {
		weighted += c.Close * c.Volume
		volume += c.Volume
		sum += c.Close
	}
	if volume == 0 {
		return sum / float64(len(candles))
	}
	return weighted / volume
}
