package market

import (
	"context"
	"fmt"
	"time"

	binance "signal-core/pkg/market/binance"
)

// BinanceSource adapts the Binance REST client to the Source interface.
type BinanceSource struct {
	Client     *binance.Client
	VWAPWindow int // trailing one-minute candles for AveragePrice
}

// NewBinanceSource wires a REST client with the default VWAP window.
func NewBinanceSource(client *binance.Client) *BinanceSource {
	return &BinanceSource{Client: client, VWAPWindow: DefaultVWAPWindow}
}

// Candles fetches ordered klines from the public endpoint.
func (s *BinanceSource) Candles(ctx context.Context, symbol, interval string, since time.Time, limit int) ([]Candle, error) {
	var start int64
	if !since.IsZero() {
		start = since.UnixMilli()
	}
	klines, err := s.Client.GetKlines(ctx, symbol, interval, limit, start)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
	}
	out := make([]Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, Candle{
			OpenTime:  time.UnixMilli(k.OpenTime),
			CloseTime: time.UnixMilli(k.CloseTime),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}
	return out, nil
}

// AveragePrice returns the VWAP over the trailing window of 1m candles.
func (s *BinanceSource) AveragePrice(ctx context.Context, symbol string) (float64, error) {
	window := s.VWAPWindow
	if window <= 0 {
		window = DefaultVWAPWindow
	}
	candles, err := s.Candles(ctx, symbol, "1m", time.Time{}, window)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("no candles returned for %s", symbol)
	}
	return VWAP(candles), nil
}
