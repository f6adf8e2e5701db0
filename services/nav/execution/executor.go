// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package execution drives a committed path one world tick at a time.
//
// # Recovery
//
// When the active movement fails, the executor records the failure and then
// escalates:
//
//  1. Unreachable: abandon the edge immediately.
//  2. Retry the same movement while the retry budget of its source allows.
//  3. Substitute an alternative movement on the same edge whose kind has not
//     failed there yet.
//  4. Abandon the edge and report NeedsReplan with a recovery.Signal.
//
// Failure memory and retry budget are cleared when a new path is committed
// and when a path completes.
//
// # Thread Safety
//
// An Executor is not safe for concurrent use. It is driven from the game
// tick goroutine; callers that need snapshots from elsewhere must lock.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
	"github.com/AleutianAI/AleutianNav/services/nav/path"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
)

var (
	// ErrNilPath is returned by Commit and Extend for a nil path.
	ErrNilPath = errors.New("cannot commit a nil path")

	// ErrNotExecuting is returned by Extend when no path is running.
	ErrNotExecuting = errors.New("executor is not executing a path")

	// ErrExtendDiverges is returned by Extend when the joined path would
	// leave the route before the active movement finishes.
	ErrExtendDiverges = errors.New("extension diverges before the active movement")
)

// State is the executor state after a tick.
type State int

const (
	// StateIdle means no path is committed.
	StateIdle State = iota

	// StateExecuting means a movement is in progress.
	StateExecuting

	// StateCompleted means the last movement of the path succeeded.
	StateCompleted

	// StateNeedsReplan means an edge was abandoned.
	StateNeedsReplan

	// StateCanceled means execution was canceled.
	StateCanceled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateNeedsReplan:
		return "needs_replan"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Config tunes an Executor.
type Config struct {
	// MaxRetries is the per-position retry cap.
	MaxRetries int

	// MemoryDuration is how long failure records stay live.
	MemoryDuration time.Duration

	// TimeoutMultiplier scales a movement's cost into a tick allowance.
	TimeoutMultiplier float64

	// TimeoutSlackTicks is added to every movement's tick allowance.
	TimeoutSlackTicks int

	// MaxDistFromPath is how far (blocks) the agent may stray from the
	// active movement before counting as off path.
	MaxDistFromPath int

	// OffPathToleranceTicks is how many consecutive off-path ticks are
	// tolerated before the edge is abandoned as desynced.
	OffPathToleranceTicks int

	// Clock returns the current time. Nil uses time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the production executor configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:            recovery.DefaultMaxRetries,
		MemoryDuration:        recovery.DefaultMemoryDuration,
		TimeoutMultiplier:     2,
		TimeoutSlackTicks:     100,
		MaxDistFromPath:       2,
		OffPathToleranceTicks: 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.MemoryDuration <= 0 {
		c.MemoryDuration = d.MemoryDuration
	}
	if c.TimeoutMultiplier <= 0 {
		c.TimeoutMultiplier = d.TimeoutMultiplier
	}
	if c.TimeoutSlackTicks < 0 {
		c.TimeoutSlackTicks = d.TimeoutSlackTicks
	}
	if c.MaxDistFromPath <= 0 {
		c.MaxDistFromPath = d.MaxDistFromPath
	}
	if c.OffPathToleranceTicks <= 0 {
		c.OffPathToleranceTicks = d.OffPathToleranceTicks
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// TickResult reports what one tick did.
type TickResult struct {
	// State is the executor state after the tick.
	State State

	// Index is the index of the movement that was ticked.
	Index int

	// Status is the status the movement reported.
	Status movement.Status

	// Recovered is true when a failure was handled this tick, in which case
	// Action says how.
	Recovered bool
	Action    recovery.Action

	// Signal is set when an edge was abandoned.
	Signal *recovery.Signal
}

// Executor runs a committed path.
type Executor struct {
	cfg      Config
	provider movement.Provider
	agent    movement.Agent
	memory   *recovery.FailureMemory
	budget   *recovery.RetryBudget
	logger   *slog.Logger

	path           path.Path
	index          int
	tracker        *movement.Tracker
	state          State
	tick           uint64
	ticksOnCurrent int
	ticksOffPath   int
	lastSignal     *recovery.Signal
}

// NewExecutor creates an idle executor.
//
// Inputs:
//   - cfg: Configuration. Zero fields take defaults.
//   - provider: Source of alternative movements.
//   - agent: The agent executing paths.
//   - logger: Logger. Nil uses slog.Default().
func NewExecutor(cfg Config, provider movement.Provider, agent movement.Agent, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Executor{
		cfg:      cfg,
		provider: provider,
		agent:    agent,
		memory:   recovery.NewFailureMemory(cfg.MemoryDuration),
		budget:   recovery.NewRetryBudget(cfg.MaxRetries),
		logger:   logger.With(slog.String("component", "executor")),
		tracker:  movement.NewTracker(),
	}
}

// Memory returns the failure memory. The navigator reads it to bias replans.
func (e *Executor) Memory() *recovery.FailureMemory { return e.memory }

// Budget returns the retry budget.
func (e *Executor) Budget() *recovery.RetryBudget { return e.budget }

// State returns the current state.
func (e *Executor) State() State { return e.state }

// Path returns the committed path, nil when idle.
func (e *Executor) Path() path.Path { return e.path }

// Index returns the index of the active movement.
func (e *Executor) Index() int { return e.index }

// LastSignal returns the most recent abandonment signal, if any.
func (e *Executor) LastSignal() *recovery.Signal { return e.lastSignal }

// Remaining returns the positions not yet reached, starting with the active
// movement's destination.
func (e *Executor) Remaining() []gridpos.Pos {
	if e.path == nil || e.index+1 >= e.path.Length() {
		return nil
	}
	return e.path.Positions()[e.index+1:]
}

// Commit starts executing p from its first movement.
//
// Description:
//
//	Any in-flight movement of the previous path is canceled. Failure
//	memory and retry budget are cleared, so callers that want to bias the
//	search by recent failures must snapshot them before committing.
//
// Outputs:
//   - error: ErrNilPath, or a wrapped path sanity error.
func (e *Executor) Commit(p path.Path) error {
	if p == nil {
		return ErrNilPath
	}
	if err := p.SanityCheck(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.cancelActive()
	e.path = p
	e.index = 0
	e.ticksOnCurrent = 0
	e.ticksOffPath = 0
	e.lastSignal = nil
	e.tracker.Reset()
	e.budget.Reset()
	e.memory.Reset()
	if p.Length() < 2 {
		e.state = StateCompleted
		return nil
	}
	p.Movement(0).Reset()
	e.state = StateExecuting
	committedPaths.Inc()
	e.logger.Debug("path committed",
		slog.String("start", p.Start().String()),
		slog.String("dest", p.Dest().String()),
		slog.Int("length", p.Length()),
		slog.Float64("cost", p.Cost()))
	return nil
}

// Extend appends next to the running path without interrupting the active
// movement.
//
// Description:
//
//	The running path and next are joined with path.Splice, shortcutting
//	where the running path already crosses next. The join must keep every
//	position up to the active movement's destination, otherwise the agent
//	would be executing a movement that is no longer on the path. Failure
//	memory and retry budget are kept.
//
// Outputs:
//   - error: ErrNilPath, ErrNotExecuting, ErrExtendDiverges or a wrapped
//     path.ErrNotSpliceable. The running path is unchanged on error.
func (e *Executor) Extend(next path.Path) error {
	if next == nil {
		return ErrNilPath
	}
	if e.state != StateExecuting {
		return fmt.Errorf("%w: state %s", ErrNotExecuting, e.state)
	}
	joined, err := path.Splice(e.path, next, true)
	if err != nil {
		return fmt.Errorf("extend: %w", err)
	}
	if joined.Length() <= e.index+1 {
		return ErrExtendDiverges
	}
	for i := 0; i <= e.index+1; i++ {
		if joined.Position(i) != e.path.Position(i) {
			return ErrExtendDiverges
		}
	}
	e.logger.Debug("path extended",
		slog.Int("from", e.path.Length()),
		slog.Int("to", joined.Length()),
		slog.String("dest", joined.Dest().String()))
	e.path = joined
	return nil
}

// Cancel aborts execution. The active movement is canceled.
func (e *Executor) Cancel() {
	if e.state != StateExecuting {
		return
	}
	e.cancelActive()
	e.state = StateCanceled
}

func (e *Executor) cancelActive() {
	if e.state != StateExecuting || e.path == nil || e.index >= e.path.Length()-1 {
		return
	}
	e.path.Movement(e.index).Cancel()
	_ = e.tracker.Advance(movement.StatusCanceled)
}

// Tick advances the active movement by one world tick.
//
// Description:
//
//	Checks that the agent is still near the active movement, enforces the
//	movement's tick allowance, ticks it and validates the reported status
//	against the movement state machine. Failures are handled in place and
//	never returned as errors.
//
// Inputs:
//   - ctx: Passed to the movement and to the provider.
//
// Outputs:
//   - TickResult: State after the tick.
func (e *Executor) Tick(ctx context.Context) TickResult {
	if e.state != StateExecuting {
		return TickResult{State: e.state, Index: e.index}
	}
	e.tick++
	ticksTotal.Inc()

	m := e.path.Movement(e.index)

	maxSq := e.cfg.MaxDistFromPath * e.cfg.MaxDistFromPath
	pos := e.agent.Position()
	if pos.DistanceSq(m.Src()) > maxSq && pos.DistanceSq(m.Dest()) > maxSq {
		e.ticksOffPath++
		if e.ticksOffPath > e.cfg.OffPathToleranceTicks {
			e.logger.Warn("agent off path",
				slog.String("pos", pos.String()),
				slog.Int("index", e.index),
				slog.Int("ticks", e.ticksOffPath))
			m.Cancel()
			return e.fail(ctx, m, movement.ReasonDesynced, false)
		}
	} else {
		e.ticksOffPath = 0
	}

	allowance := int(m.Cost()*e.cfg.TimeoutMultiplier) + e.cfg.TimeoutSlackTicks
	if e.ticksOnCurrent > allowance {
		e.logger.Info("movement timed out",
			slog.String("kind", m.Kind()),
			slog.Int("index", e.index),
			slog.Int("ticks", e.ticksOnCurrent),
			slog.Int("allowance", allowance))
		m.Cancel()
		return e.fail(ctx, m, movement.ReasonTimedOut, true)
	}

	out := m.Tick(ctx, movement.TickContext{
		Tick:           e.tick,
		TicksOnCurrent: e.ticksOnCurrent,
		Agent:          e.agent,
	})
	e.ticksOnCurrent++

	if err := e.tracker.Advance(out.Status); err != nil {
		e.logger.Warn("movement reported illegal status",
			slog.String("kind", m.Kind()),
			slog.String("error", err.Error()))
		m.Cancel()
		return e.fail(ctx, m, movement.ReasonDesynced, true)
	}

	switch out.Status {
	case movement.StatusSuccess:
		movementsTotal.WithLabelValues(out.Status.String()).Inc()
		return e.advance()
	case movement.StatusUnreachable:
		movementsTotal.WithLabelValues(out.Status.String()).Inc()
		return e.fail(ctx, m, movement.ReasonUnreachable, false)
	case movement.StatusFailed:
		movementsTotal.WithLabelValues(out.Status.String()).Inc()
		reason := out.Reason
		if reason == movement.ReasonUnreachable {
			// An unreachable reason on a plain failure is still a failure.
			reason = movement.ReasonUnknown
		}
		return e.fail(ctx, m, reason, true)
	case movement.StatusCanceled:
		movementsTotal.WithLabelValues(out.Status.String()).Inc()
		e.state = StateCanceled
		return TickResult{State: e.state, Index: e.index, Status: out.Status}
	default:
		return TickResult{State: e.state, Index: e.index, Status: out.Status}
	}
}

// advance moves to the next movement after a success.
func (e *Executor) advance() TickResult {
	done := e.index
	e.index++
	e.ticksOnCurrent = 0
	e.tracker.Reset()
	if e.index >= e.path.Length()-1 {
		e.state = StateCompleted
		e.budget.Reset()
		e.memory.Reset()
		e.logger.Debug("path completed", slog.String("dest", e.path.Dest().String()))
		return TickResult{State: e.state, Index: done, Status: movement.StatusSuccess}
	}
	e.path.Movement(e.index).Reset()
	return TickResult{State: e.state, Index: done, Status: movement.StatusSuccess}
}

// fail records a failure of m and escalates through retry, alternative and
// abandonment.
func (e *Executor) fail(ctx context.Context, m movement.Movement, reason movement.FailureReason, retryable bool) TickResult {
	status := movement.StatusFailed
	if reason == movement.ReasonUnreachable {
		status = movement.StatusUnreachable
	}
	rec := e.memory.RecordFailure(recovery.EdgeOf(m), m.Kind(), reason, e.cfg.Clock())
	e.logger.Info("movement failed",
		slog.String("edge", rec.Edge.String()),
		slog.String("kind", m.Kind()),
		slog.String("reason", reason.String()),
		slog.Int("attempts", rec.Attempts))

	if !retryable || reason == movement.ReasonUnreachable {
		return e.abandon(rec, status)
	}

	src := m.Src()
	e.budget.RecordRetry(src)
	if e.budget.CanRetry(src) {
		e.restart(m)
		return TickResult{State: e.state, Index: e.index, Status: status, Recovered: true, Action: recovery.ActionRetry}
	}

	if alt := e.alternative(ctx, m, rec); alt != nil {
		err := e.path.ReplaceMovement(e.index, alt)
		if err == nil {
			e.logger.Info("substituted alternative movement",
				slog.String("edge", rec.Edge.String()),
				slog.String("from", m.Kind()),
				slog.String("to", alt.Kind()))
			e.restart(alt)
			return TickResult{State: e.state, Index: e.index, Status: status, Recovered: true, Action: recovery.ActionAlternative}
		}
		e.logger.Debug("alternative rejected", slog.String("error", err.Error()))
	}

	return e.abandon(rec, status)
}

func (e *Executor) restart(m movement.Movement) {
	m.Reset()
	e.tracker.Reset()
	e.ticksOnCurrent = 0
	e.ticksOffPath = 0
}

// alternative returns the cheapest passable movement on the same edge whose
// kind has not failed there, or nil.
func (e *Executor) alternative(ctx context.Context, failed movement.Movement, rec recovery.Record) movement.Movement {
	if e.provider == nil {
		return nil
	}
	candidates, err := e.provider.Movements(ctx, failed.Src())
	if err != nil {
		e.logger.Debug("alternative lookup failed", slog.String("error", err.Error()))
		return nil
	}
	var best movement.Movement
	for _, c := range candidates {
		if !movement.SameEdge(c, failed) || c.Kind() == failed.Kind() || rec.HasFailedKind(c.Kind()) {
			continue
		}
		if !movement.Passable(c.Cost()) {
			continue
		}
		if best == nil || c.Cost() < best.Cost() {
			best = c
		}
	}
	return best
}

func (e *Executor) abandon(rec recovery.Record, status movement.Status) TickResult {
	sig := recovery.NewSignal(rec, e.agent.Position(), e.index)
	e.lastSignal = &sig
	e.state = StateNeedsReplan
	e.logger.Warn("edge abandoned", slog.String("signal", sig.String()))
	return TickResult{
		State:     e.state,
		Index:     e.index,
		Status:    status,
		Recovered: true,
		Action:    recovery.ActionReplan,
		Signal:    &sig,
	}
}
