// Package engine owns the signal lifecycle state machine. One Engine exists
// per (symbol, strategy) pair and is the only writer of that key's in-memory
// and persisted signal state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"signal-core/internal/market"
	"signal-core/internal/persist"
	"signal-core/internal/pnl"
	"signal-core/internal/risk"
	"signal-core/internal/signal"
	"signal-core/internal/strategy"
)

// ErrStateConflict means both stores reported a signal for one key on
// restore. The engine cannot tell which position is real, so the affected
// driver must halt rather than continue with undefined state.
var ErrStateConflict = errors.New("schedule and pending stores both populated")

// Config holds the immutable economic parameters injected at construction.
type Config struct {
	Limits signal.Limits
	Costs  pnl.Costs

	// ScheduleAwait caps how long a scheduled signal may wait for its entry
	// price. Zero means the signal's own lifetime is the cap.
	ScheduleAwait time.Duration
}

// Callbacks receive engine-side notifications. All fields are optional.
type Callbacks struct {
	OnMilestone         func(sig signal.Signal, level int, price float64)
	OnRestoredActive    func(sig signal.Signal, price float64)
	OnRestoredScheduled func(sig signal.Signal, price float64)
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Gate          risk.Gate
	ScheduleStore persist.Store
	PendingStore  persist.Store
	Proposer      strategy.Proposer
	Callbacks     Callbacks
}

type engineState int

const (
	stateIdle engineState = iota
	stateScheduled
	stateOpened
	stateActive
)

func (s engineState) String() string {
	switch s {
	case stateScheduled:
		return "scheduled"
	case stateOpened:
		return "opened"
	case stateActive:
		return "active"
	default:
		return "idle"
	}
}

// Engine drives one (symbol, strategy) slot through the signal lifecycle.
// Every durable write completes before the corresponding TickResult is
// returned, so an external reader can never observe a state that is not
// already recorded.
type Engine struct {
	strategyID string
	exchangeID string
	symbol     string
	cfg        Config
	gate       risk.Gate
	schedule   persist.Store
	pending    persist.Store
	proposer   strategy.Proposer
	callbacks  Callbacks

	suspended atomic.Bool

	mu         sync.Mutex
	state      engineState
	current    signal.Signal
	milestones map[int]bool
}

// New constructs an engine for one key. Callers must not build a second
// engine for the same (symbol, strategy); use the Cache.
func New(strategyID, exchangeID, symbol string, cfg Config, deps Deps) *Engine {
	return &Engine{
		strategyID: strategyID,
		exchangeID: exchangeID,
		symbol:     symbol,
		cfg:        cfg,
		gate:       deps.Gate,
		schedule:   deps.ScheduleStore,
		pending:    deps.PendingStore,
		proposer:   deps.Proposer,
		callbacks:  deps.Callbacks,
		milestones: make(map[int]bool),
	}
}

func (e *Engine) key() persist.Key {
	return persist.Key{StrategyID: e.strategyID, Symbol: e.symbol}
}

func (e *Engine) header(price float64, at time.Time) signal.TickHeader {
	return signal.TickHeader{
		StrategyID: e.strategyID,
		ExchangeID: e.exchangeID,
		Symbol:     e.symbol,
		Price:      price,
		At:         at,
	}
}

// Suspend stops the engine from consulting its proposer. In-flight signals
// keep running to natural closure.
func (e *Engine) Suspend() { e.suspended.Store(true) }

// Resume re-enables proposal generation.
func (e *Engine) Resume() { e.suspended.Store(false) }

// Snapshot describes the current slot for observability.
type Snapshot struct {
	StrategyID string         `json:"strategy_id"`
	ExchangeID string         `json:"exchange_id"`
	Symbol     string         `json:"symbol"`
	State      string         `json:"state"`
	Signal     *signal.Signal `json:"signal,omitempty"`
}

// Snapshot returns a copy of the engine's visible state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		StrategyID: e.strategyID,
		ExchangeID: e.exchangeID,
		Symbol:     e.symbol,
		State:      e.state.String(),
	}
	if e.state != stateIdle {
		sig := e.current
		snap.Signal = &sig
	}
	return snap
}

// Idle reports whether the slot holds no signal.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateIdle
}

// Tick evaluates one state machine step at the given reference price and
// time. Expected conditions (validation failure, admission denial, nothing
// to do) are expressed through the returned tag; a non-nil error is an
// infrastructure fault and means the step should be retried on the next
// natural tick.
func (e *Engine) Tick(ctx context.Context, now time.Time, price float64) (signal.TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateIdle:
		return e.tickIdle(ctx, now, price)
	case stateScheduled:
		return e.tickScheduled(ctx, now, price)
	case stateOpened:
		// Opened advances to Active on the very next evaluation.
		e.state = stateActive
		return e.tickActive(ctx, now, price)
	case stateActive:
		return e.tickActive(ctx, now, price)
	default:
		return nil, fmt.Errorf("engine %s: unknown state %d", e.key(), e.state)
	}
}

func (e *Engine) tickIdle(ctx context.Context, now time.Time, price float64) (signal.TickResult, error) {
	hdr := e.header(price, now)
	if e.proposer == nil || e.suspended.Load() {
		return signal.TickIdle{TickHeader: hdr}, nil
	}

	prop, err := e.proposer.Propose(ctx, e.symbol, price, now)
	if err != nil {
		log.Printf("engine %s: proposer error: %v", e.key(), err)
		return signal.TickIdle{TickHeader: hdr}, nil
	}
	if prop == nil {
		return signal.TickIdle{TickHeader: hdr}, nil
	}

	scheduled := prop.EntryPrice > 0 && prop.EntryPrice != price
	if violations := signal.Validate(*prop, price, scheduled, e.cfg.Limits); len(violations) > 0 {
		for _, v := range violations {
			log.Printf("engine %s: proposal rejected, %s", e.key(), v)
		}
		return signal.TickIdle{TickHeader: hdr, Violations: violations}, nil
	}
	if !e.admit(ctx, *prop, price, now) {
		log.Printf("engine %s: proposal not admitted by risk gate", e.key())
		return signal.TickIdle{TickHeader: hdr}, nil
	}

	sig := e.buildSignal(*prop, price, now, scheduled)
	if scheduled {
		if err := e.schedule.Write(ctx, e.key(), sig.Record()); err != nil {
			return nil, fmt.Errorf("persist scheduled signal: %w", err)
		}
		e.gate.AddSignal(sig)
		e.current = sig
		e.state = stateScheduled
		return signal.TickScheduled{TickHeader: hdr, Signal: sig}, nil
	}

	if err := e.pending.Write(ctx, e.key(), sig.Record()); err != nil {
		return nil, fmt.Errorf("persist opened signal: %w", err)
	}
	e.gate.AddSignal(sig)
	e.current = sig
	e.state = stateOpened
	e.resetMilestones()
	return signal.TickOpened{TickHeader: hdr, Signal: sig}, nil
}

func (e *Engine) buildSignal(prop signal.Proposal, price float64, now time.Time, scheduled bool) signal.Signal {
	id := prop.ID
	if id == "" {
		id = uuid.NewString()
	}
	entry := prop.EntryPrice
	if entry == 0 {
		entry = price
	}
	return signal.Signal{
		ID:              id,
		StrategyID:      e.strategyID,
		ExchangeID:      e.exchangeID,
		Symbol:          e.symbol,
		Side:            prop.Side,
		EntryPrice:      entry,
		TakeProfit:      prop.TakeProfit,
		StopLoss:        prop.StopLoss,
		LifetimeMinutes: prop.LifetimeMinutes,
		Note:            prop.Note,
		Scheduled:       scheduled,
		ScheduledAt:     now,
		PendingAt:       now,
	}
}

func (e *Engine) tickScheduled(ctx context.Context, now time.Time, price float64) (signal.TickResult, error) {
	sig := e.current

	// Stop breach is checked before activation so a gapped price cannot
	// activate and immediately stop out on the same tick.
	stopBreached := (sig.Side == signal.SideLong && price <= sig.StopLoss) ||
		(sig.Side == signal.SideShort && price >= sig.StopLoss)
	if stopBreached {
		return e.cancelLocked(ctx, now, price, signal.CancelStopBreach)
	}

	entryReached := (sig.Side == signal.SideLong && price <= sig.EntryPrice) ||
		(sig.Side == signal.SideShort && price >= sig.EntryPrice)
	if entryReached {
		// Market conditions may have changed since scheduling.
		if !e.admit(ctx, proposalOf(sig), price, now) {
			log.Printf("engine %s: activation denied by risk gate", e.key())
			return e.cancelLocked(ctx, now, price, signal.CancelRiskRejected)
		}
		if err := e.schedule.Delete(ctx, e.key()); err != nil {
			return nil, fmt.Errorf("clear schedule store on activation: %w", err)
		}
		opened := sig
		opened.Scheduled = false
		opened.PendingAt = now
		if err := e.pending.Write(ctx, e.key(), opened.Record()); err != nil {
			// The schedule row is already gone; the in-memory signal stays
			// scheduled and the write is retried on the next tick.
			return nil, fmt.Errorf("persist activated signal: %w", err)
		}
		e.current = opened
		e.state = stateOpened
		e.resetMilestones()
		return signal.TickOpened{TickHeader: e.header(price, now), Signal: opened}, nil
	}

	await := e.cfg.ScheduleAwait
	if await == 0 {
		await = sig.Lifetime()
	}
	if now.Sub(sig.ScheduledAt) >= await {
		return e.cancelLocked(ctx, now, price, signal.CancelTimeout)
	}

	return signal.TickScheduled{TickHeader: e.header(price, now), Signal: sig}, nil
}

func (e *Engine) tickActive(ctx context.Context, now time.Time, price float64) (signal.TickResult, error) {
	sig := e.current

	if reason, hit := closeCondition(sig, price, now); hit {
		return e.closeLocked(ctx, now, price, reason)
	}

	pctTP, pctSL := progress(sig, price)
	e.emitMilestones(sig, pctTP, pctSL, price)

	return signal.TickActive{
		TickHeader: e.header(price, now),
		Signal:     sig,
		PercentTP:  pctTP,
		PercentSL:  pctSL,
	}, nil
}

// closeCondition reports whether the active signal must close at this price
// and time, and why. TP and SL cannot both trigger for a validated signal.
func closeCondition(sig signal.Signal, price float64, now time.Time) (signal.CloseReason, bool) {
	if sig.Side == signal.SideLong {
		if price >= sig.TakeProfit {
			return signal.CloseTakeProfit, true
		}
		if price <= sig.StopLoss {
			return signal.CloseStopLoss, true
		}
	} else {
		if price <= sig.TakeProfit {
			return signal.CloseTakeProfit, true
		}
		if price >= sig.StopLoss {
			return signal.CloseStopLoss, true
		}
	}
	if !now.Before(sig.ExpiresAt()) {
		return signal.CloseTimeExpired, true
	}
	return "", false
}

// progress maps the current price to 0-100 linear progress toward TP and SL.
// Only the side the price has moved to is reported; the other is pinned at 0.
func progress(sig signal.Signal, price float64) (pctTP, pctSL float64) {
	var towardTP, towardSL float64
	if sig.Side == signal.SideLong {
		towardTP = (price - sig.EntryPrice) / (sig.TakeProfit - sig.EntryPrice)
		towardSL = (sig.EntryPrice - price) / (sig.EntryPrice - sig.StopLoss)
	} else {
		towardTP = (sig.EntryPrice - price) / (sig.EntryPrice - sig.TakeProfit)
		towardSL = (price - sig.EntryPrice) / (sig.StopLoss - sig.EntryPrice)
	}
	if towardTP > 0 {
		pctTP = clampPct(towardTP * 100)
	}
	if towardSL > 0 {
		pctSL = clampPct(towardSL * 100)
	}
	return pctTP, pctSL
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// emitMilestones fires the one-time ±10%..±100% notifications. Deduplicated
// per signal by the engine's milestone set.
func (e *Engine) emitMilestones(sig signal.Signal, pctTP, pctSL, price float64) {
	if e.callbacks.OnMilestone == nil {
		return
	}
	for level := 10; level <= 100; level += 10 {
		if pctTP >= float64(level) && !e.milestones[level] {
			e.milestones[level] = true
			e.callbacks.OnMilestone(sig, level, price)
		}
		if pctSL >= float64(level) && !e.milestones[-level] {
			e.milestones[-level] = true
			e.callbacks.OnMilestone(sig, -level, price)
		}
	}
}

func (e *Engine) resetMilestones() {
	e.milestones = make(map[int]bool)
}

func (e *Engine) closeLocked(ctx context.Context, now time.Time, price float64, reason signal.CloseReason) (signal.TickResult, error) {
	sig := e.current

	if err := e.pending.Delete(ctx, e.key()); err != nil {
		return nil, fmt.Errorf("clear pending store on close: %w", err)
	}
	e.gate.RemoveSignal(sig)

	adjEntry := pnl.AdjustedEntry(sig.EntryPrice, sig.Side, e.cfg.Costs)
	adjExit := pnl.AdjustedExit(price, sig.Side, e.cfg.Costs)
	result := signal.ClosedResult{
		Signal:    sig,
		Reason:    reason,
		ClosedAt:  now,
		ExitPrice: price,
		AdjEntry:  adjEntry,
		AdjExit:   adjExit,
		PnlPct:    pnl.Percent(sig.EntryPrice, price, sig.Side, e.cfg.Costs),
	}

	e.state = stateIdle
	e.current = signal.Signal{}
	e.resetMilestones()
	return signal.TickClosed{TickHeader: e.header(price, now), Result: result}, nil
}

func (e *Engine) cancelLocked(ctx context.Context, now time.Time, price float64, reason signal.CancelReason) (signal.TickResult, error) {
	sig := e.current

	if err := e.schedule.Delete(ctx, e.key()); err != nil {
		return nil, fmt.Errorf("clear schedule store on cancel: %w", err)
	}
	e.gate.RemoveSignal(sig)

	result := signal.CancelledResult{
		Signal:      sig,
		Reason:      reason,
		CancelledAt: now,
	}

	e.state = stateIdle
	e.current = signal.Signal{}
	return signal.TickCancelled{TickHeader: e.header(price, now), Result: result}, nil
}

// CancelScheduled cancels a waiting signal immediately, without a tick.
// Returns nil when no scheduled signal exists.
func (e *Engine) CancelScheduled(ctx context.Context, now time.Time, price float64) (signal.TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateScheduled {
		return nil, nil
	}
	return e.cancelLocked(ctx, now, price, signal.CancelExternal)
}

// FastForward resolves an opened signal to closure across a bounded ordered
// candle run, evaluating close conditions candle by candle on close prices.
// If the run exhausts without TP or SL being hit, the signal closes as
// time_expired at the final candle (or at the fallback time and price when
// the run is empty). Returns the terminal result and how many candles were
// consumed.
func (e *Engine) FastForward(ctx context.Context, fallbackNow time.Time, fallbackPrice float64, candles []market.Candle) (signal.TickResult, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateOpened {
		e.state = stateActive
	}
	if e.state != stateActive {
		return nil, 0, fmt.Errorf("engine %s: fast-forward requires an active signal", e.key())
	}

	sig := e.current
	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return nil, i, err
		}
		now, price := c.CloseTime, c.Close
		if reason, hit := closeCondition(sig, price, now); hit {
			res, err := e.closeLocked(ctx, now, price, reason)
			return res, i + 1, err
		}
		pctTP, pctSL := progress(sig, price)
		e.emitMilestones(sig, pctTP, pctSL, price)
	}

	now, price := fallbackNow, fallbackPrice
	if n := len(candles); n > 0 {
		now, price = candles[n-1].CloseTime, candles[n-1].Close
	}
	res, err := e.closeLocked(ctx, now, price, signal.CloseTimeExpired)
	return res, len(candles), err
}

// Restore seeds the engine from the durable stores before the first live
// tick. Not-found is the normal empty state; both stores reporting a signal
// is ErrStateConflict and must halt the caller. When the caller has no
// current price, callbacks receive the signal's entry price so downstream
// consumers never see a zero reference.
func (e *Engine) Restore(ctx context.Context, now time.Time, price float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pendingRec, err := e.pending.Read(ctx, e.key())
	if err != nil && !errors.Is(err, persist.ErrNotFound) {
		return fmt.Errorf("read pending store: %w", err)
	}
	scheduleRec, err := e.schedule.Read(ctx, e.key())
	if err != nil && !errors.Is(err, persist.ErrNotFound) {
		return fmt.Errorf("read schedule store: %w", err)
	}

	if pendingRec != nil && scheduleRec != nil {
		return fmt.Errorf("engine %s: %w", e.key(), ErrStateConflict)
	}

	switch {
	case pendingRec != nil:
		sig := pendingRec.Signal()
		e.current = sig
		e.state = stateActive
		e.resetMilestones()
		e.gate.AddSignal(sig)
		log.Printf("engine %s: restored active signal %s", e.key(), sig.ID)
		if e.callbacks.OnRestoredActive != nil {
			e.callbacks.OnRestoredActive(sig, referencePrice(price, sig))
		}
	case scheduleRec != nil:
		sig := scheduleRec.Signal()
		e.current = sig
		e.state = stateScheduled
		e.gate.AddSignal(sig)
		log.Printf("engine %s: restored scheduled signal %s", e.key(), sig.ID)
		if e.callbacks.OnRestoredScheduled != nil {
			e.callbacks.OnRestoredScheduled(sig, referencePrice(price, sig))
		}
	}
	return nil
}

// referencePrice substitutes the signal's entry price when the market price
// is unknown.
func referencePrice(price float64, sig signal.Signal) float64 {
	if price > 0 {
		return price
	}
	return sig.EntryPrice
}

// admit asks the risk gate for admission. Gate faults, including panics,
// count as "not admitted" so a misbehaving gate cannot corrupt engine state.
func (e *Engine) admit(ctx context.Context, prop signal.Proposal, price float64, now time.Time) bool {
	ok, err := func() (ok bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("risk gate panic: %v", r)
			}
		}()
		return e.gate.CheckSignal(ctx, risk.CheckRequest{
			Symbol:       e.symbol,
			StrategyID:   e.strategyID,
			ExchangeID:   e.exchangeID,
			Proposal:     prop,
			CurrentPrice: price,
			At:           now,
		})
	}()
	if err != nil {
		log.Printf("engine %s: risk gate fault: %v (treated as not admitted)", e.key(), err)
		return false
	}
	return ok
}

// proposalOf rebuilds the proposal view of a signal for gate re-checks.
func proposalOf(sig signal.Signal) signal.Proposal {
	return signal.Proposal{
		ID:              sig.ID,
		Side:            sig.Side,
		EntryPrice:      sig.EntryPrice,
		TakeProfit:      sig.TakeProfit,
		StopLoss:        sig.StopLoss,
		LifetimeMinutes: sig.LifetimeMinutes,
		Note:            sig.Note,
	}
}
