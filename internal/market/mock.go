package market

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MockSource serves scripted or random-walk prices for local development and
// tests. With a script, AveragePrice walks the sequence one step per call
// and sticks at the final value; without one it produces a random walk.
type MockSource struct {
	StartPrice float64
	Step       float64

	mu     sync.Mutex
	script map[string][]float64
	pos    map[string]int
	last   map[string]float64
}

// NewMockSource builds an empty mock source.
func NewMockSource() *MockSource {
	return &MockSource{
		StartPrice: 100,
		Step:       0.5,
		script:     make(map[string][]float64),
		pos:        make(map[string]int),
		last:       make(map[string]float64),
	}
}

// SetScript installs a deterministic price sequence for a symbol.
func (m *MockSource) SetScript(symbol string, prices []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[symbol] = prices
	m.pos[symbol] = 0
}

// AveragePrice returns the next scripted price, or advances a random walk.
func (m *MockSource) AveragePrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq, ok := m.script[symbol]; ok && len(seq) > 0 {
		i := m.pos[symbol]
		if i >= len(seq) {
			i = len(seq) - 1
		} else {
			m.pos[symbol] = i + 1
		}
		m.last[symbol] = seq[i]
		return seq[i], nil
	}

	price, ok := m.last[symbol]
	if !ok {
		price = m.StartPrice
	}
	price += (rand.Float64()*2 - 1) * m.Step
	m.last[symbol] = price
	return price, nil
}

// Candles synthesizes flat one-price bars from the script (or last price).
func (m *MockSource) Candles(ctx context.Context, symbol, interval string, since time.Time, limit int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = DefaultVWAPWindow
	}
	step := intervalDuration(interval)
	start := since
	if start.IsZero() {
		start = time.Now().Add(-time.Duration(limit) * step).Truncate(step)
	}

	seq := m.script[symbol]
	out := make([]Candle, 0, limit)
	for i := 0; i < limit; i++ {
		price := m.last[symbol]
		if price == 0 {
			price = m.StartPrice
		}
		if i < len(seq) {
			price = seq[i]
		} else if len(seq) > 0 {
			price = seq[len(seq)-1]
		}
		open := start.Add(time.Duration(i) * step)
		out = append(out, Candle{
			OpenTime:  open,
			CloseTime: open.Add(step),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1,
		})
	}
	return out, nil
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m", "":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}
