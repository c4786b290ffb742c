package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	binance "signal-core/pkg/market/binance"
)

// StreamSource layers Binance websocket klines over the REST source. Once a
// watched symbol has a full trailing window of streamed bars, AveragePrice is
// answered from memory; until then, and for candle history, it falls back to
// REST.
type StreamSource struct {
	rest   *BinanceSource
	stream *binance.StreamClient

	mu    sync.Mutex
	bars  map[string][]Candle
	stops map[string]func()
}

// NewStreamSource wires the websocket feed over a REST fallback.
func NewStreamSource(rest *BinanceSource, stream *binance.StreamClient) *StreamSource {
	return &StreamSource{
		rest:   rest,
		stream: stream,
		bars:   make(map[string][]Candle),
		stops:  make(map[string]func()),
	}
}

// Watch subscribes to the symbol's one-minute kline stream. Watching a
// symbol twice is a no-op.
func (s *StreamSource) Watch(ctx context.Context, symbol string) error {
	s.mu.Lock()
	_, watching := s.stops[symbol]
	s.mu.Unlock()
	if watching {
		return nil
	}

	ch, stop, err := s.stream.SubscribeKlines(ctx, symbol, "1m")
	if err != nil {
		return fmt.Errorf("watch %s: %w", symbol, err)
	}

	s.mu.Lock()
	s.stops[symbol] = stop
	s.mu.Unlock()

	go func() {
		for k := range ch {
			s.ingest(symbol, k)
		}
	}()
	return nil
}

// ingest folds one streamed kline into the trailing window. Binance re-sends
// the open bar as it updates, so a kline matching the tail's open time
// replaces it instead of appending.
func (s *StreamSource) ingest(symbol string, k binance.Kline) {
	c := Candle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.bars[symbol]
	if n := len(bars); n > 0 && bars[n-1].OpenTime.Equal(c.OpenTime) {
		bars[n-1] = c
	} else {
		bars = append(bars, c)
	}
	if window := s.window(); len(bars) > window {
		bars = bars[len(bars)-window:]
	}
	s.bars[symbol] = bars
}

func (s *StreamSource) window() int {
	if s.rest != nil && s.rest.VWAPWindow > 0 {
		return s.rest.VWAPWindow
	}
	return DefaultVWAPWindow
}

// Candles serves history from REST; the stream only carries the live tail.
func (s *StreamSource) Candles(ctx context.Context, symbol, interval string, since time.Time, limit int) ([]Candle, error) {
	if s.rest == nil {
		return nil, fmt.Errorf("no rest source for %s history", symbol)
	}
	return s.rest.Candles(ctx, symbol, interval, since, limit)
}

// AveragePrice answers from the streamed window when it is warm and falls
// back to REST otherwise.
func (s *StreamSource) AveragePrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	bars := s.bars[symbol]
	warm := len(bars) >= s.window()
	var snapshot []Candle
	if warm {
		snapshot = append([]Candle(nil), bars...)
	}
	s.mu.Unlock()

	if warm {
		return VWAP(snapshot), nil
	}
	if s.rest == nil {
		return 0, fmt.Errorf("no stream data for %s", symbol)
	}
	return s.rest.AveragePrice(ctx, symbol)
}

// Close stops every stream subscription.
func (s *StreamSource) Close() {
	s.mu.Lock()
	stops := make([]func(), 0, len(s.stops))
	for _, stop := range s.stops {
		stops = append(stops, stop)
	}
	s.stops = make(map[string]func())
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}
