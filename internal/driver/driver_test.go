package driver

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/market"
	"signal-core/internal/persist"
	"signal-core/internal/pnl"
	"signal-core/internal/risk"
	"signal-core/internal/signal"
	"signal-core/internal/strategy"
)

func newStores(t *testing.T) (schedule, pending persist.Store) {
	t.Helper()
	dir := t.TempDir()
	var err error
	schedule, err = persist.NewFileStore(filepath.Join(dir, "scheduled"))
	if err != nil {
		t.Fatal(err)
	}
	pending, err = persist.NewFileStore(filepath.Join(dir, "pending"))
	if err != nil {
		t.Fatal(err)
	}
	return schedule, pending
}

func newEngine(t *testing.T, schedule, pending persist.Store, proposer strategy.Proposer) *engine.Engine {
	t.Helper()
	cfg := engine.Config{
		Limits: signal.DefaultLimits(),
		Costs:  pnl.Costs{FeePct: 0.1, SlippagePct: 0.1},
	}
	return engine.New("run-1", "mock", "BTCUSDT", cfg, engine.Deps{
		Gate:          risk.NewPortfolioGate(risk.DefaultGateConfig()),
		ScheduleStore: schedule,
		PendingStore:  pending,
		Proposer:      proposer,
	})
}

// oneShot proposes once and then stays quiet.
func oneShot(p signal.Proposal) strategy.Proposer {
	fired := false
	return strategy.ProposerFunc(func(context.Context, string, float64, time.Time) (*signal.Proposal, error) {
		if fired {
			return nil, nil
		}
		fired = true
		prop := p
		return &prop, nil
	})
}

func marketLongProp() signal.Proposal {
	return signal.Proposal{
		Side:            signal.SideLong,
		TakeProfit:      51000,
		StopLoss:        49000,
		LifetimeMinutes: 600,
	}
}

func TestBacktestClosesAtTakeProfit(t *testing.T) {
	ctx := context.Background()
	source := market.NewMockSource()
	source.SetScript("BTCUSDT", []float64{50000, 50200, 51100, 50900})
	schedule, pending := newStores(t)
	eng := newEngine(t, schedule, pending, oneShot(marketLongProp()))

	bt := NewBacktest(eng, source, nil, BacktestOptions{Symbol: "BTCUSDT", Limit: 4})
	report, err := bt.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Candles != 4 {
		t.Errorf("candles = %d, want 4", report.Candles)
	}
	if len(report.Closed) != 1 {
		t.Fatalf("closed = %d, want 1", len(report.Closed))
	}
	got := report.Closed[0]
	if got.Reason != signal.CloseTakeProfit {
		t.Errorf("reason = %s, want take_profit", got.Reason)
	}
	if got.ExitPrice != 51100 {
		t.Errorf("exit = %v, want 51100", got.ExitPrice)
	}
	if report.Wins != 1 || report.Losses != 0 {
		t.Errorf("wins/losses = %d/%d, want 1/0", report.Wins, report.Losses)
	}
	if !eng.Idle() {
		t.Error("engine should finish the run idle")
	}
}

func TestBacktestExpiresAtRunEnd(t *testing.T) {
	ctx := context.Background()
	source := market.NewMockSource()
	// Never reaches TP or SL: the position force-closes at the last candle.
	source.SetScript("BTCUSDT", []float64{50000, 50100, 50200})
	schedule, pending := newStores(t)
	eng := newEngine(t, schedule, pending, oneShot(marketLongProp()))

	bt := NewBacktest(eng, source, nil, BacktestOptions{Symbol: "BTCUSDT", Limit: 3})
	report, err := bt.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Closed) != 1 {
		t.Fatalf("closed = %d, want 1", len(report.Closed))
	}
	got := report.Closed[0]
	if got.Reason != signal.CloseTimeExpired {
		t.Errorf("reason = %s, want time_expired", got.Reason)
	}
	if got.ExitPrice != 50200 {
		t.Errorf("exit = %v, want last close 50200", got.ExitPrice)
	}
}

func TestBacktestCancelsLeftoverScheduled(t *testing.T) {
	ctx := context.Background()
	source := market.NewMockSource()
	source.SetScript("BTCUSDT", []float64{50000, 50100, 50050})
	schedule, pending := newStores(t)
	// Entry well below the script: never activates.
	eng := newEngine(t, schedule, pending, oneShot(signal.Proposal{
		Side:            signal.SideLong,
		EntryPrice:      49000,
		TakeProfit:      51000,
		StopLoss:        48000,
		LifetimeMinutes: 600,
	}))

	bt := NewBacktest(eng, source, nil, BacktestOptions{Symbol: "BTCUSDT", Limit: 3})
	report, err := bt.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Cancelled) != 1 {
		t.Fatalf("cancelled = %d, want 1", len(report.Cancelled))
	}
	if report.Cancelled[0].Reason != signal.CancelExternal {
		t.Errorf("reason = %s, want external", report.Cancelled[0].Reason)
	}
	if _, err := schedule.Read(ctx, persist.Key{StrategyID: "run-1", Symbol: "BTCUSDT"}); !errors.Is(err, persist.ErrNotFound) {
		t.Errorf("schedule store should finish empty, got %v", err)
	}
}

// Fast-forward must reach the same terminal result as ticking the same
// closes one by one.
func TestFastForwardMatchesTickByTick(t *testing.T) {
	ctx := context.Background()
	script := []float64{50000, 50400, 50800, 49100, 48900}

	runBacktest := func(t *testing.T) signal.ClosedResult {
		source := market.NewMockSource()
		source.SetScript("BTCUSDT", script)
		schedule, pending := newStores(t)
		eng := newEngine(t, schedule, pending, oneShot(marketLongProp()))
		report, err := NewBacktest(eng, source, nil, BacktestOptions{Symbol: "BTCUSDT", Limit: len(script)}).Run(ctx)
		if err != nil {
			t.Fatalf("backtest: %v", err)
		}
		if len(report.Closed) != 1 {
			t.Fatalf("closed = %d, want 1", len(report.Closed))
		}
		return report.Closed[0]
	}

	runTicks := func(t *testing.T) signal.ClosedResult {
		source := market.NewMockSource()
		source.SetScript("BTCUSDT", script)
		candles, err := source.Candles(ctx, "BTCUSDT", "1m", time.Time{}, len(script))
		if err != nil {
			t.Fatal(err)
		}
		schedule, pending := newStores(t)
		eng := newEngine(t, schedule, pending, oneShot(marketLongProp()))
		for _, c := range candles {
			res, err := eng.Tick(ctx, c.CloseTime, c.Close)
			if err != nil {
				t.Fatalf("tick: %v", err)
			}
			if closed, ok := res.(signal.TickClosed); ok {
				return closed.Result
			}
		}
		t.Fatal("tick-by-tick run never closed")
		return signal.ClosedResult{}
	}

	fromFF := runBacktest(t)
	fromTicks := runTicks(t)
	if fromFF.Reason != fromTicks.Reason {
		t.Errorf("reason: fast-forward %s vs ticks %s", fromFF.Reason, fromTicks.Reason)
	}
	if fromFF.ExitPrice != fromTicks.ExitPrice {
		t.Errorf("exit: fast-forward %v vs ticks %v", fromFF.ExitPrice, fromTicks.ExitPrice)
	}
	if fromFF.PnlPct != fromTicks.PnlPct {
		t.Errorf("pnl: fast-forward %v vs ticks %v", fromFF.PnlPct, fromTicks.PnlPct)
	}
}

func TestLiveStopIsCooperativeAndIdempotent(t *testing.T) {
	source := market.NewMockSource()
	schedule, pending := newStores(t)
	eng := newEngine(t, schedule, pending, nil)
	live := NewLive(eng, source, nil, "BTCUSDT", time.Second)

	// Stop before Run: the loop must exit immediately after restore.
	live.Stop()
	live.Stop() // second call is a no-op

	errCh := make(chan error, 1)
	go func() { errCh <- live.Run(context.Background()) }()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live driver did not stop")
	}
}

func TestLiveDrainExitsWhenIdle(t *testing.T) {
	source := market.NewMockSource()
	schedule, pending := newStores(t)
	eng := newEngine(t, schedule, pending, oneShot(marketLongProp()))
	live := NewLive(eng, source, nil, "BTCUSDT", time.Second)

	// Draining an idle engine suppresses the pending proposal and exits on
	// the first tick.
	live.Drain()
	errCh := make(chan error, 1)
	go func() { errCh <- live.Run(context.Background()) }()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("drained driver did not exit")
	}
	if !eng.Idle() {
		t.Error("engine must be idle after a drained run")
	}
}

func TestLiveHaltsOnRestoreConflict(t *testing.T) {
	ctx := context.Background()
	source := market.NewMockSource()
	schedule, pending := newStores(t)
	key := persist.Key{StrategyID: "run-1", Symbol: "BTCUSDT"}
	rec := signal.Signal{
		ID: "sig-1", StrategyID: "run-1", Symbol: "BTCUSDT", Side: signal.SideLong,
		EntryPrice: 50000, TakeProfit: 51000, StopLoss: 49000, LifetimeMinutes: 600,
		ScheduledAt: time.Now(), PendingAt: time.Now(),
	}.Record()
	if err := schedule.Write(ctx, key, rec); err != nil {
		t.Fatal(err)
	}
	if err := pending.Write(ctx, key, rec); err != nil {
		t.Fatal(err)
	}

	eng := newEngine(t, schedule, pending, nil)
	live := NewLive(eng, source, nil, "BTCUSDT", time.Second)
	err := live.Run(ctx)
	if !errors.Is(err, engine.ErrStateConflict) {
		t.Fatalf("err = %v, want ErrStateConflict", err)
	}
}

func TestManagerBacktestRun(t *testing.T) {
	ctx := context.Background()
	source := market.NewMockSource()
	source.SetScript("BTCUSDT", []float64{50000, 50200, 51100})
	schedule, pending := newStores(t)
	bus := events.NewBus()

	mgr := NewManager(ManagerConfig{
		Engine: engine.Config{Limits: signal.DefaultLimits(), Costs: pnl.Costs{FeePct: 0.1, SlippagePct: 0.1}},
	}, engine.NewCache(), risk.NewPortfolioGate(risk.DefaultGateConfig()), schedule, pending, source, bus)

	spec := RunSpec{
		ID:         "bt-1",
		Mode:       ModeBacktest,
		Symbol:     "BTCUSDT",
		ExchangeID: "mock",
		Strategy:   "threshold",
		Params:     map[string]any{"take_profit_pct": 2, "stop_loss_pct": 1},
		Candles:    3,
	}
	if err := mgr.Start(ctx, spec); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var info RunInfo
	for {
		var ok bool
		info, ok = mgr.Info("bt-1")
		if !ok {
			t.Fatal("run disappeared")
		}
		if info.State != RunRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run stuck in state %s", info.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if info.State != RunFinished {
		t.Fatalf("state = %s (%s), want finished", info.State, info.Error)
	}
	if info.Report == nil || len(info.Report.Closed) != 1 {
		t.Fatalf("report = %+v, want one closed trade", info.Report)
	}
}

func TestManagerRejectsBadSpecs(t *testing.T) {
	source := market.NewMockSource()
	schedule, pending := newStores(t)
	mgr := NewManager(ManagerConfig{Engine: engine.Config{Limits: signal.DefaultLimits()}},
		engine.NewCache(), risk.NewPortfolioGate(risk.DefaultGateConfig()), schedule, pending, source, nil)

	cases := []RunSpec{
		{Mode: ModeLive, Symbol: "BTCUSDT"},                              // missing id
		{ID: "a", Mode: ModeLive},                                        // missing symbol
		{ID: "a", Mode: "replay", Symbol: "BTCUSDT"},                     // unknown mode
		{ID: "a", Mode: ModeLive, Symbol: "BTCUSDT", Strategy: "nope"},   // unknown strategy
	}
	for _, spec := range cases {
		if err := mgr.Start(context.Background(), spec); err == nil {
			t.Errorf("spec %+v should be rejected", spec)
		}
	}
}

// flakySource serves a fixed price queue and then fails every call.
type flakySource struct {
	mu     sync.Mutex
	prices []float64
}

func (f *flakySource) AveragePrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prices) == 0 {
		return 0, errors.New("feed down")
	}
	price := f.prices[0]
	f.prices = f.prices[1:]
	return price, nil
}

func (f *flakySource) Candles(ctx context.Context, symbol, interval string, since time.Time, limit int) ([]market.Candle, error) {
	return nil, errors.New("feed down")
}

func waitForRun(t *testing.T, mgr *Manager, id string, deadline time.Duration, cond func(RunInfo) bool) RunInfo {
	t.Helper()
	limit := time.Now().Add(deadline)
	for {
		info, ok := mgr.Info(id)
		if !ok {
			t.Fatalf("run %s disappeared", id)
		}
		if cond(info) {
			return info
		}
		if time.Now().After(limit) {
			t.Fatalf("run %s stuck: state=%s engine=%s", id, info.State, info.Engine.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Stopping a live run must not abandon an open position: proposals stop, the
// in-flight signal runs to its natural closure, and only then does the
// driver exit.
func TestManagerStopDrainsOpenSignal(t *testing.T) {
	ctx := context.Background()
	source := market.NewMockSource()
	// restore fetch, open at market, advance, hit take-profit
	source.SetScript("BTCUSDT", []float64{50000, 50000, 50200, 51100})
	schedule, pending := newStores(t)
	bus := events.NewBus()
	closedCh, unsub := bus.Subscribe(events.EventSignalClosed, 4)
	defer unsub()

	mgr := NewManager(ManagerConfig{
		Engine:      engine.Config{Limits: signal.DefaultLimits(), Costs: pnl.Costs{FeePct: 0.1, SlippagePct: 0.1}},
		DefaultTick: time.Second,
	}, engine.NewCache(), risk.NewPortfolioGate(risk.DefaultGateConfig()), schedule, pending, source, bus)

	spec := RunSpec{
		ID:         "live-tp",
		Mode:       ModeLive,
		Symbol:     "BTCUSDT",
		ExchangeID: "mock",
		Strategy:   "threshold",
		Params:     map[string]any{"take_profit_pct": 2, "stop_loss_pct": 1},
	}
	if err := mgr.Start(ctx, spec); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForRun(t, mgr, "live-tp", 5*time.Second, func(info RunInfo) bool {
		return info.Engine.State != "idle"
	})

	stopped := make(chan error, 1)
	go func() { stopped <- mgr.Stop("live-tp") }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("stop did not wait for the open signal to close")
	}

	info, ok := mgr.Info("live-tp")
	if !ok || info.State != RunStopped {
		t.Fatalf("state = %+v, want stopped", info)
	}
	if info.Engine.State != "idle" {
		t.Fatalf("engine state = %s, want idle after closure", info.Engine.State)
	}
	select {
	case msg := <-closedCh:
		closed, isClosed := msg.(signal.TickClosed)
		if !isClosed {
			t.Fatalf("closed payload = %T", msg)
		}
		if closed.Result.Reason != signal.CloseTakeProfit {
			t.Errorf("reason = %s, want take_profit", closed.Result.Reason)
		}
	default:
		t.Fatal("no closed result published before stop returned")
	}
	if _, err := pending.Read(ctx, persist.Key{StrategyID: "live-tp", Symbol: "BTCUSDT"}); !errors.Is(err, persist.ErrNotFound) {
		t.Errorf("pending store should finish empty, got %v", err)
	}
}

// Restarting a finished run with a different strategy must not reuse the old
// engine's proposer.
func TestManagerRestartUsesNewStrategy(t *testing.T) {
	ctx := context.Background()
	source := market.NewMockSource()
	source.SetScript("BTCUSDT", []float64{50000})
	schedule, pending := newStores(t)

	mgr := NewManager(ManagerConfig{
		Engine:      engine.Config{Limits: signal.DefaultLimits()},
		DefaultTick: time.Second,
	}, engine.NewCache(), risk.NewPortfolioGate(risk.DefaultGateConfig()), schedule, pending, source, nil)

	spec := RunSpec{ID: "live-r", Mode: ModeLive, Symbol: "BTCUSDT", ExchangeID: "mock", Strategy: "none"}
	if err := mgr.Start(ctx, spec); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := mgr.Stop("live-r"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	spec.Strategy = "threshold"
	spec.Params = map[string]any{"take_profit_pct": 2, "stop_loss_pct": 1}
	if err := mgr.Start(ctx, spec); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer mgr.StopAll()

	// The restarted run proposes; the old "none" engine never would.
	waitForRun(t, mgr, "live-r", 5*time.Second, func(info RunInfo) bool {
		return info.Engine.State != "idle"
	})
}

// A dead feed at cancel time must not stamp the cancellation with a zero
// reference price.
func TestCancelScheduledWithFeedDown(t *testing.T) {
	ctx := context.Background()
	source := &flakySource{prices: []float64{50000, 50000}}
	schedule, pending := newStores(t)

	mgr := NewManager(ManagerConfig{
		Engine:      engine.Config{Limits: signal.DefaultLimits()},
		DefaultTick: time.Second,
	}, engine.NewCache(), risk.NewPortfolioGate(risk.DefaultGateConfig()), schedule, pending, source, nil)

	spec := RunSpec{
		ID:         "live-c",
		Mode:       ModeLive,
		Symbol:     "BTCUSDT",
		ExchangeID: "mock",
		Strategy:   "threshold",
		Params:     map[string]any{"entry_offset_pct": 1, "take_profit_pct": 2, "stop_loss_pct": 1},
	}
	if err := mgr.Start(ctx, spec); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.StopAll()

	waitForRun(t, mgr, "live-c", 5*time.Second, func(info RunInfo) bool {
		return info.Engine.State == "scheduled"
	})

	res, err := mgr.CancelScheduled(ctx, "live-c")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	cancelled, isCancelled := res.(signal.TickCancelled)
	if !isCancelled {
		t.Fatalf("result = %T, want TickCancelled", res)
	}
	if cancelled.Result.Reason != signal.CancelExternal {
		t.Errorf("reason = %s, want external", cancelled.Result.Reason)
	}
	// entry was offset 1% below the 50000 proposal price
	if got := cancelled.Header().Price; got != 49500 {
		t.Errorf("reference price = %v, want the entry price 49500", got)
	}
}

func TestManagerStopsLiveRun(t *testing.T) {
	ctx := context.Background()
	source := market.NewMockSource()
	schedule, pending := newStores(t)
	mgr := NewManager(ManagerConfig{Engine: engine.Config{Limits: signal.DefaultLimits()}, DefaultTick: time.Second},
		engine.NewCache(), risk.NewPortfolioGate(risk.DefaultGateConfig()), schedule, pending, source, nil)

	spec := RunSpec{ID: "live-1", Mode: ModeLive, Symbol: "BTCUSDT", ExchangeID: "mock", Strategy: "none"}
	if err := mgr.Start(ctx, spec); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := mgr.Start(ctx, spec); err == nil {
		t.Fatal("duplicate id must be rejected while running")
	}

	if err := mgr.Stop("live-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	info, ok := mgr.Info("live-1")
	if !ok || info.State != RunStopped {
		t.Fatalf("state = %+v, want stopped", info)
	}
	if err := mgr.Stop("missing"); err == nil {
		t.Fatal("stopping an unknown run must fail")
	}
}
