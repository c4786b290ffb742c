package driver

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/market"
	"signal-core/internal/persist"
	"signal-core/internal/risk"
	"signal-core/internal/signal"
	"signal-core/internal/strategy"
)

// Run modes.
const (
	ModeLive     = "live"
	ModeBacktest = "backtest"
)

// RunSpec declares one driver run. It is the unit loaded from the YAML runs
// file and accepted by the control API.
type RunSpec struct {
	ID         string         `yaml:"id" json:"id"`
	Mode       string         `yaml:"mode" json:"mode"`
	Symbol     string         `yaml:"symbol" json:"symbol"`
	ExchangeID string         `yaml:"exchange_id" json:"exchange_id"`
	Strategy   string         `yaml:"strategy" json:"strategy"`
	Params     map[string]any `yaml:"params" json:"params,omitempty"`

	// Backtest bounds.
	Interval string `yaml:"interval" json:"interval,omitempty"`
	Candles  int    `yaml:"candles" json:"candles,omitempty"`

	// Live cadence in seconds; 0 uses the manager default.
	TickSeconds int `yaml:"tick_seconds" json:"tick_seconds,omitempty"`
}

func (s RunSpec) validate() error {
	if s.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if s.Symbol == "" {
		return fmt.Errorf("run %s: symbol is required", s.ID)
	}
	if s.Mode != ModeLive && s.Mode != ModeBacktest {
		return fmt.Errorf("run %s: mode must be %q or %q, got %q", s.ID, ModeLive, ModeBacktest, s.Mode)
	}
	return nil
}

// RunState tracks a run through its lifetime.
type RunState string

const (
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	RunStopped  RunState = "stopped"
	RunFailed   RunState = "failed"
)

// RunInfo is the observable view of one run.
type RunInfo struct {
	Spec   RunSpec         `json:"spec"`
	State  RunState        `json:"state"`
	Error  string          `json:"error,omitempty"`
	Engine engine.Snapshot `json:"engine"`
	Report *Report         `json:"report,omitempty"`
}

type run struct {
	spec   RunSpec
	engine *engine.Engine
	live   *Live
	cancel context.CancelFunc
	done   chan struct{}

	state  RunState
	err    error
	report *Report
}

// ManagerConfig carries the shared engine parameters and defaults.
type ManagerConfig struct {
	Engine       engine.Config
	DefaultTick  time.Duration // live cadence when the spec leaves it zero
	DefaultLimit int           // backtest candle count when the spec leaves it zero
}

// Manager owns every driver run, keyed by run id. One engine exists per
// (strategy, symbol, mode) slot via the shared cache.
type Manager struct {
	cfg      ManagerConfig
	cache    *engine.Cache
	gate     risk.Gate
	schedule persist.Store
	pending  persist.Store
	source   market.Source
	bus      *events.Bus

	mu   sync.Mutex
	runs map[string]*run
}

// NewManager wires a manager over shared infrastructure.
func NewManager(cfg ManagerConfig, cache *engine.Cache, gate risk.Gate, schedule, pending persist.Store, source market.Source, bus *events.Bus) *Manager {
	if cfg.DefaultTick <= 0 {
		cfg.DefaultTick = 15 * time.Second
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 500
	}
	return &Manager{
		cfg:      cfg,
		cache:    cache,
		gate:     gate,
		schedule: schedule,
		pending:  pending,
		source:   source,
		bus:      bus,
		runs:     make(map[string]*run),
	}
}

// Start launches a run in the background. The run id must be unique among
// runs that have not been removed.
func (m *Manager) Start(ctx context.Context, spec RunSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	proposer, err := strategy.New(spec.Strategy, spec.Params)
	if err != nil {
		return fmt.Errorf("run %s: %w", spec.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.runs[spec.ID]; ok && existing.state == RunRunning {
		return fmt.Errorf("run %s already running", spec.ID)
	}

	eng := m.cache.Get(engine.CacheKey{StrategyID: spec.ID, Symbol: spec.Symbol, Mode: spec.Mode}, func() *engine.Engine {
		return engine.New(spec.ID, spec.ExchangeID, spec.Symbol, m.cfg.Engine, engine.Deps{
			Gate:          m.gate,
			ScheduleStore: m.schedule,
			PendingStore:  m.pending,
			Proposer:      proposer,
			Callbacks: engine.Callbacks{
				OnMilestone:         milestonePublisher(m.bus),
				OnRestoredActive:    restorePublisher(m.bus),
				OnRestoredScheduled: restorePublisher(m.bus),
			},
		})
	})

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		spec:   spec,
		engine: eng,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  RunRunning,
	}
	if spec.Mode == ModeLive {
		every := m.cfg.DefaultTick
		if spec.TickSeconds > 0 {
			every = time.Duration(spec.TickSeconds) * time.Second
		}
		r.live = NewLive(eng, m.source, m.bus, spec.Symbol, every)
	}
	m.runs[spec.ID] = r

	go m.execute(runCtx, r)
	log.Printf("run %s started (%s %s, strategy %s)", spec.ID, spec.Mode, spec.Symbol, spec.Strategy)
	return nil
}

func (m *Manager) execute(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	var (
		report *Report
		err    error
	)
	if r.spec.Mode == ModeBacktest {
		limit := r.spec.Candles
		if limit <= 0 {
			limit = m.cfg.DefaultLimit
		}
		bt := NewBacktest(r.engine, m.source, m.bus, BacktestOptions{
			Symbol:   r.spec.Symbol,
			Interval: r.spec.Interval,
			Limit:    limit,
		})
		report, err = bt.Run(ctx)
	} else {
		err = r.live.Run(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r.report = report
	switch {
	case err == nil:
		if r.spec.Mode == ModeLive {
			r.state = RunStopped
		} else {
			r.state = RunFinished
		}
	case ctx.Err() != nil:
		r.state = RunStopped
	default:
		r.state = RunFailed
		r.err = err
		log.Printf("run %s failed: %v", r.spec.ID, err)
	}
	// Terminal runs release their engine slot; a restart builds a fresh
	// engine with the restarted spec's strategy and recovers any persisted
	// signal from the stores.
	m.cache.Evict(engine.CacheKey{StrategyID: r.spec.ID, Symbol: r.spec.Symbol, Mode: r.spec.Mode})
}

// Stop winds one run down and waits for it to exit. Live runs drain: new
// proposals stop immediately, but an in-flight signal runs to its natural
// closure before the driver returns. Backtests are bounded and are
// cancelled outright.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	if r.live != nil {
		r.live.Drain()
	} else {
		r.cancel()
	}
	<-r.done
	return nil
}

// StopAll halts every driver immediately, for process shutdown. Open
// signals stay in the durable stores and resume on the next boot.
func (m *Manager) StopAll() {
	m.mu.Lock()
	running := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		running = append(running, r)
	}
	m.mu.Unlock()

	for _, r := range running {
		if r.live != nil {
			r.live.Stop()
		}
		r.cancel()
	}
	for _, r := range running {
		<-r.done
	}
}

// CancelScheduled cancels a run's waiting signal without stopping the run.
// Returns the cancellation result, or nil when nothing was scheduled.
func (m *Manager) CancelScheduled(ctx context.Context, id string) (signal.TickResult, error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}

	price, err := priceWithRetry(ctx, m.source, r.spec.Symbol, 3)
	if err != nil {
		// Fall back to the waiting signal's entry price rather than
		// stamping the cancellation with a zero reference.
		if snap := r.engine.Snapshot(); snap.Signal != nil {
			price = snap.Signal.EntryPrice
		}
		log.Printf("run %s: price unavailable for cancel, using entry reference: %v", id, err)
	}
	res, err := r.engine.CancelScheduled(ctx, time.Now(), price)
	if err != nil {
		return nil, err
	}
	publishTick(m.bus, res)
	return res, nil
}

// Suspend pauses proposal generation for one run without stopping it.
func (m *Manager) Suspend(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	r.engine.Suspend()
	return nil
}

// Resume re-enables proposal generation for one run.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	r.engine.Resume()
	return nil
}

// Info returns the observable view of one run.
func (m *Manager) Info(id string) (RunInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return RunInfo{}, false
	}
	return m.infoLocked(r), true
}

// List returns every known run.
func (m *Manager) List() []RunInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunInfo, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, m.infoLocked(r))
	}
	return out
}

func (m *Manager) infoLocked(r *run) RunInfo {
	info := RunInfo{
		Spec:   r.spec,
		State:  r.state,
		Engine: r.engine.Snapshot(),
		Report: r.report,
	}
	if r.err != nil {
		info.Error = r.err.Error()
	}
	return info
}
