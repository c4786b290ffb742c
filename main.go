package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-core/internal/api"
	"signal-core/internal/driver"
	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/market"
	"signal-core/internal/persist"
	"signal-core/internal/pnl"
	"signal-core/internal/risk"
	sig "signal-core/internal/signal"
	"signal-core/pkg/config"
	"signal-core/pkg/db"
	marketbinance "signal-core/pkg/market/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("signal core starting on port %s (mock feed: %v)", cfg.Port, cfg.UseMockFeed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	schedule, pending, err := buildStores(cfg, database)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}

	gate := risk.NewPortfolioGate(risk.GateConfig{
		MaxConcurrentSignals: cfg.MaxConcurrentSignals,
		MaxPerSymbol:         cfg.MaxPerSymbol,
	})

	source := buildSource(cfg)
	if streamed, ok := source.(*market.StreamSource); ok {
		defer streamed.Close()
	}

	mgr := driver.NewManager(driver.ManagerConfig{
		Engine: engine.Config{
			Limits: sig.Limits{
				MinProfitPct:       cfg.MinProfitPct,
				MinStopPct:         cfg.MinStopPct,
				MaxStopPct:         cfg.MaxStopPct,
				MaxLifetimeMinutes: cfg.MaxLifetimeMinutes,
			},
			Costs:         pnl.Costs{FeePct: cfg.FeePct, SlippagePct: cfg.SlippagePct},
			ScheduleAwait: time.Duration(cfg.ScheduleAwaitMinutes) * time.Minute,
		},
		DefaultTick: time.Duration(cfg.TickSeconds) * time.Second,
	}, engine.NewCache(), gate, schedule, pending, source, bus)

	// Journal: terminal results flow from the bus into SQLite.
	go recordTrades(ctx, bus, database.Queries())

	// Boot runs from the YAML file.
	runs, err := config.LoadRuns(cfg.RunsFile)
	if err != nil {
		log.Fatalf("runs file failed: %v", err)
	}
	for _, spec := range runs {
		if streamed, ok := source.(*market.StreamSource); ok && spec.Mode == driver.ModeLive {
			if err := streamed.Watch(ctx, spec.Symbol); err != nil {
				log.Printf("stream watch %s unavailable, REST polling only: %v", spec.Symbol, err)
			}
		}
		if err := mgr.Start(ctx, spec); err != nil {
			log.Printf("run %s not started: %v", spec.ID, err)
		}
	}

	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "v1.0-dev"
	}
	server := api.NewServer(bus, database, mgr, api.SystemMeta{
		UseMockFeed: cfg.UseMockFeed,
		Testnet:     cfg.BinanceTestnet,
		Version:     version,
	}, cfg.JWTSecret)

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	mgr.StopAll()
	cancel()
	log.Println("signal core stopped")
}

// buildStores selects the persistence backend. Both stores share one backend
// so crash recovery sees a consistent pair.
func buildStores(cfg *config.Config, database *db.Database) (schedule, pending persist.Store, err error) {
	if cfg.StoreBackend == "sqlite" {
		schedule, err = persist.NewSQLiteStore(database.DB, persist.TableScheduled)
		if err != nil {
			return nil, nil, err
		}
		pending, err = persist.NewSQLiteStore(database.DB, persist.TablePending)
		if err != nil {
			return nil, nil, err
		}
		return schedule, pending, nil
	}
	schedule, err = persist.NewFileStore(cfg.StoreDir + "/scheduled")
	if err != nil {
		return nil, nil, err
	}
	pending, err = persist.NewFileStore(cfg.StoreDir + "/pending")
	if err != nil {
		return nil, nil, err
	}
	return schedule, pending, nil
}

// buildSource picks the price feed: a deterministic mock for local runs, or
// Binance websocket klines layered over the public REST API.
func buildSource(cfg *config.Config) market.Source {
	if cfg.UseMockFeed {
		log.Println("using mock price feed")
		return market.NewMockSource()
	}
	client := marketbinance.NewClient(cfg.BinanceTestnet)
	rest := market.NewBinanceSource(client)
	rest.VWAPWindow = cfg.VWAPWindow
	return market.NewStreamSource(rest, marketbinance.NewStreamClient(cfg.BinanceTestnet))
}

// recordTrades journals every terminal signal result.
func recordTrades(ctx context.Context, bus *events.Bus, queries *db.Queries) {
	closedRaw, unsubClosed := bus.Subscribe(events.EventSignalClosed, 100)
	defer unsubClosed()
	cancelledRaw, unsubCancelled := bus.Subscribe(events.EventSignalCancelled, 100)
	defer unsubCancelled()

	closed := events.Typed[sig.TickClosed](closedRaw)
	cancelled := events.Typed[sig.TickCancelled](cancelledRaw)

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-closed:
			if !ok {
				return
			}
			r := tick.Result
			err := queries.InsertClosedTrade(ctx, db.ClosedTrade{
				ID:         r.ID,
				StrategyID: r.StrategyID,
				ExchangeID: r.ExchangeID,
				Symbol:     r.Symbol,
				Side:       string(r.Side),
				EntryPrice: r.EntryPrice,
				ExitPrice:  r.ExitPrice,
				AdjEntry:   r.AdjEntry,
				AdjExit:    r.AdjExit,
				PnlPct:     r.PnlPct,
				Reason:     string(r.Reason),
				Note:       r.Note,
				OpenedAt:   r.PendingAt,
				ClosedAt:   r.ClosedAt,
			})
			if err != nil {
				log.Printf("journal closed trade %s: %v", r.ID, err)
			}
		case tick, ok := <-cancelled:
			if !ok {
				return
			}
			r := tick.Result
			err := queries.InsertCancelledSignal(ctx, db.CancelledSignal{
				ID:          r.ID,
				StrategyID:  r.StrategyID,
				ExchangeID:  r.ExchangeID,
				Symbol:      r.Symbol,
				Side:        string(r.Side),
				Reason:      string(r.Reason),
				ScheduledAt: r.ScheduledAt,
				CancelledAt: r.CancelledAt,
			})
			if err != nil {
				log.Printf("journal cancelled signal %s: %v", r.ID, err)
			}
		}
	}
}
