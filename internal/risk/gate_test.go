package risk

import (
	"context"
	"testing"

	"signal-core/internal/signal"
)

func req(strategy, symbol string) CheckRequest {
	return CheckRequest{
		Symbol:     symbol,
		StrategyID: strategy,
		ExchangeID: "binance",
		Proposal:   signal.Proposal{Side: signal.SideLong, TakeProfit: 51000, StopLoss: 49000, LifetimeMinutes: 60},
	}
}

func sig(id, strategy, symbol string) signal.Signal {
	return signal.Signal{ID: id, StrategyID: strategy, Symbol: symbol, Side: signal.SideLong}
}

func TestPortfolioGateLimits(t *testing.T) {
	ctx := context.Background()
	g := NewPortfolioGate(GateConfig{MaxConcurrentSignals: 2, MaxPerSymbol: 1})

	ok, err := g.CheckSignal(ctx, req("a", "BTCUSDT"))
	if err != nil || !ok {
		t.Fatalf("empty gate should admit, got ok=%v err=%v", ok, err)
	}
	g.AddSignal(sig("1", "a", "BTCUSDT"))

	t.Run("per-symbol limit", func(t *testing.T) {
		ok, _ := g.CheckSignal(ctx, req("b", "BTCUSDT"))
		if ok {
			t.Fatal("second strategy on same symbol should be denied")
		}
		// A different symbol is fine.
		ok, _ = g.CheckSignal(ctx, req("b", "ETHUSDT"))
		if !ok {
			t.Fatal("different symbol should be admitted")
		}
	})

	t.Run("re-check for holder is not self-blocked", func(t *testing.T) {
		ok, _ := g.CheckSignal(ctx, req("a", "BTCUSDT"))
		if !ok {
			t.Fatal("holder re-check should pass")
		}
	})

	t.Run("portfolio limit", func(t *testing.T) {
		g.AddSignal(sig("2", "b", "ETHUSDT"))
		ok, _ := g.CheckSignal(ctx, req("c", "SOLUSDT"))
		if ok {
			t.Fatal("gate at capacity should deny new keys")
		}
	})

	t.Run("release frees the slot", func(t *testing.T) {
		g.RemoveSignal(sig("2", "b", "ETHUSDT"))
		ok, _ := g.CheckSignal(ctx, req("c", "SOLUSDT"))
		if !ok {
			t.Fatal("slot should be free after removal")
		}
	})
}

func TestPortfolioGateUnlimited(t *testing.T) {
	g := NewPortfolioGate(GateConfig{})
	for i := 0; i < 50; i++ {
		g.AddSignal(sig(string(rune('a'+i)), "s", "BTCUSDT"))
	}
	ok, err := g.CheckSignal(context.Background(), req("x", "BTCUSDT"))
	if err != nil || !ok {
		t.Fatalf("zero limits mean unlimited, got ok=%v err=%v", ok, err)
	}
}
