// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package navigator runs the plan/execute/recover loop for one agent.
//
// # Control Flow
//
// SetGoal starts a background search. Each Tick first collects finished
// searches and commits their paths to the executor, then advances the
// executor by one movement tick. An abandoned edge, a failed search or a
// finished segment that stops short of the goal schedules a new search,
// replans being rate limited. While a partial path runs, the next segment
// is searched from its end and spliced on when it arrives.
//
// Searches read the world through the Provider on their own goroutine. The
// only state crossing back is the finished, immutable path, handed over on
// a channel. Failure memory flows the other way: each search's bias map is
// built from the executor's active failure records at the moment it starts.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Tick is expected to be
// called from a single game-tick goroutine.
package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianNav/services/nav/bias"
	"github.com/AleutianAI/AleutianNav/services/nav/execution"
	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/path"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
	"github.com/AleutianAI/AleutianNav/services/nav/search"
	"github.com/AleutianAI/AleutianNav/services/nav/telemetry"
)

const tracerName = "github.com/AleutianAI/AleutianNav/services/nav/navigator"

// Search triggers, used as span, metric and history labels.
const (
	TriggerGoal      = "goal"
	TriggerSegment   = "segment"
	TriggerPlanAhead = "plan_ahead"
)

// Replan causes.
const (
	CauseAbandoned    = "abandoned"
	CauseSearchFailed = "search_failed"
	CauseCommitFailed = "commit_failed"
	CauseCanceled     = "canceled"
	CauseStaleStart   = "stale_start"
)

type outcome struct {
	seq     uint64
	trigger string
	start   gridpos.Pos
	result  search.Result
}

// TickReport describes what one Tick did.
type TickReport struct {
	// Execution is the executor's tick result when Executed is true.
	Execution execution.TickResult
	Executed  bool

	// Committed is true when a new path was committed this tick.
	Committed bool

	// Extended is true when a plan-ahead segment was spliced on.
	Extended bool

	// Replanned is true when a replan search started this tick.
	Replanned bool

	// Throttled is true when a pending replan was held back by the limiter.
	Throttled bool

	// Arrived is true on the tick the agent reached the goal.
	Arrived bool
}

// Navigator drives one agent towards a goal.
type Navigator struct {
	cfg     Config
	deps    Deps
	runID   string
	logger  *slog.Logger
	tracer  trace.Tracer
	clock   func() time.Time
	limiter *rate.Limiter

	base    context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	results chan outcome
	ready   chan struct{}

	mu             sync.Mutex
	exec           *execution.Executor
	goal           goal.Goal
	finder         *search.Finder
	searching      bool
	searchTrigger  string
	searchSeq      uint64
	pending        string
	prevPath       []gridpos.Pos
	plannedAhead   bool
	arrived        bool
	failed         bool
	searchFailures int
	closed         bool

	searches   int
	replans    int
	throttled  int
	commits    int
	lastSearch *history.Search
	lastSignal *recovery.Signal
}

// New creates a navigator.
//
// Inputs:
//
//	cfg - Configuration. Zero fields take defaults.
//	deps - Collaborators. Agent and Provider are required.
//
// Outputs:
//
//	*Navigator - The navigator, idle until SetGoal. Call Close when done.
//	error - ErrMissingDependency.
func New(cfg Config, deps Deps) (*Navigator, error) {
	if deps.Agent == nil || deps.Provider == nil {
		return nil, ErrMissingDependency
	}
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.Execution.Clock == nil {
		cfg.Execution.Clock = deps.Clock
	}
	if cfg.Search.Clock == nil {
		cfg.Search.Clock = deps.Clock
	}

	runID := uuid.NewString()
	logger := deps.Logger.With(slog.String("component", "navigator"), slog.String("run_id", runID))
	base, stop := context.WithCancel(context.Background())

	return &Navigator{
		cfg:     cfg,
		deps:    deps,
		runID:   runID,
		logger:  logger,
		tracer:  deps.Tracer,
		clock:   deps.Clock,
		limiter: rate.NewLimiter(rate.Every(cfg.ReplanInterval), cfg.ReplanBurst),
		base:    base,
		stop:    stop,
		results: make(chan outcome, 4),
		ready:   make(chan struct{}, 1),
		exec:    execution.NewExecutor(cfg.Execution, deps.Provider, deps.Agent, logger),
	}, nil
}

// RunID identifies this navigator in logs and history.
func (n *Navigator) RunID() string {
	return n.runID
}

// SetGoal replaces the goal and starts searching from the agent's position.
//
// Description:
//
//	Any in-flight search is canceled and its result discarded. The path
//	being executed is canceled. Failure memory is kept, so edges that just
//	failed stay penalised for the new goal.
//
// Inputs:
//
//	ctx - Links the search span to the caller's trace.
//	g - The new goal.
//
// Outputs:
//
//	error - ErrNilGoal or ErrClosed.
func (n *Navigator) SetGoal(ctx context.Context, g goal.Goal) error {
	if g == nil {
		return ErrNilGoal
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.cancelSearchLocked()
	n.exec.Cancel()
	n.goal = g
	n.arrived = false
	n.failed = false
	n.searchFailures = 0
	n.pending = ""
	n.prevPath = nil
	n.plannedAhead = false

	telemetry.LoggerWithTrace(ctx, n.logger).Info("goal set", slog.String("goal", fmt.Sprint(g)))
	n.startSearchLocked(ctx, TriggerGoal, n.deps.Agent.Position(), nil)
	return nil
}

// Tick collects finished searches, advances execution by one tick and
// schedules replans.
func (n *Navigator) Tick(ctx context.Context) TickReport {
	n.mu.Lock()
	defer n.mu.Unlock()

	var rep TickReport
	if n.closed {
		return rep
	}
	n.drainLocked(ctx, &rep)
	if n.goal == nil || n.arrived || n.failed {
		return rep
	}

	if n.exec.State() == execution.StateExecuting {
		r := n.exec.Tick(ctx)
		rep.Execution = r
		rep.Executed = true
		if r.Recovered {
			n.deps.Metrics.RecordRecovery(ctx, r.Action.String())
		}
		if r.Signal != nil {
			n.onAbandonLocked(ctx, *r.Signal)
		}
	}

	switch n.exec.State() {
	case execution.StateCompleted:
		n.onCompletedLocked(ctx, &rep)
	case execution.StateExecuting:
		n.maybePlanAheadLocked(ctx)
	case execution.StateCanceled:
		if !n.searching && n.pending == "" {
			n.pending = CauseCanceled
		}
	}

	n.replanLocked(ctx, &rep)
	return rep
}

// SearchReady is signalled after a search result is queued for the next
// Tick. Drivers without a fixed tick rate wait on it instead of spinning
// while a search runs.
func (n *Navigator) SearchReady() <-chan struct{} {
	return n.ready
}

// Searching reports whether a search is in flight.
func (n *Navigator) Searching() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.searching
}

// Done reports whether there is nothing left to do: no goal, goal reached,
// or goal given up on.
func (n *Navigator) Done() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.goal == nil || n.arrived || n.failed
}

// Close cancels any search and execution and waits for search goroutines.
func (n *Navigator) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.cancelSearchLocked()
	n.exec.Cancel()
	n.stop()
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}

// cancelSearchLocked cancels the in-flight search and invalidates its result.
func (n *Navigator) cancelSearchLocked() {
	if n.finder != nil {
		n.finder.Cancel()
	}
	n.finder = nil
	n.searching = false
	n.searchSeq++
}

// startSearchLocked launches a search from start on a new goroutine.
func (n *Navigator) startSearchLocked(ctx context.Context, trigger string, start gridpos.Pos, backtrack []gridpos.Pos) {
	if n.finder != nil {
		n.finder.Cancel()
	}
	builder := bias.NewBuilder().Backtrack(backtrack, n.cfg.BacktrackCoefficient)
	if n.deps.Hazards != nil {
		builder.Hazards(n.deps.Hazards()...)
	}
	builder.Failures(n.exec.Memory().Active(n.clock()), n.cfg.FailurePenalty)
	req := search.Request{
		Start:    start,
		Goal:     n.goal,
		Provider: n.deps.Provider,
		Bias:     builder.Build(),
	}

	finder := search.NewFinder(n.cfg.Search, n.logger)
	n.searchSeq++
	seq := n.searchSeq
	n.finder = finder
	n.searching = true
	n.searchTrigger = trigger
	n.searches++

	link := trace.LinkFromContext(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sctx, span := n.tracer.Start(n.base, "nav.search",
			trace.WithLinks(link),
			trace.WithAttributes(
				attribute.String("nav.trigger", trigger),
				attribute.String("nav.start", start.String()),
				attribute.Int("nav.bias_positions", req.Bias.Positions()),
			))
		res := finder.Find(sctx, req)
		span.SetAttributes(
			attribute.String("nav.result", res.Type.String()),
			attribute.Int("nav.nodes", res.NumNodesConsidered))
		if res.Err != nil {
			telemetry.RecordError(span, res.Err)
		} else {
			telemetry.SetSpanOK(span)
		}
		span.End()

		select {
		case n.results <- outcome{seq: seq, trigger: trigger, start: start, result: res}:
		case <-n.base.Done():
			return
		}
		select {
		case n.ready <- struct{}{}:
		default:
		}
	}()
}

func (n *Navigator) drainLocked(ctx context.Context, rep *TickReport) {
	for {
		select {
		case o := <-n.results:
			n.handleOutcomeLocked(ctx, o, rep)
		default:
			return
		}
	}
}

func (n *Navigator) handleOutcomeLocked(ctx context.Context, o outcome, rep *TickReport) {
	res := o.result
	n.deps.Metrics.RecordSearch(ctx, o.trigger, res.Type.String(), res.Duration)
	summary := summarize(o)
	n.appendLocked(ctx, history.KindSearch, func(e *history.Entry) { e.Search = &summary })

	if o.seq != n.searchSeq {
		n.logger.Debug("discarding superseded search",
			slog.String("trigger", o.trigger),
			slog.String("result", res.Type.String()))
		return
	}
	n.searching = false
	n.finder = nil
	n.lastSearch = &summary
	if n.goal == nil || n.arrived || n.failed {
		return
	}

	if res.Type == search.ResultException {
		n.failed = true
		n.logger.Error("search failed with an exception, giving up on goal",
			slog.String("error", fmt.Sprint(res.Err)))
		return
	}
	if !res.Type.HasPath() || res.Path == nil {
		if o.trigger == TriggerPlanAhead && n.exec.State() == execution.StateExecuting {
			// The segment end starts a fresh search.
			return
		}
		n.searchFailures++
		if n.searchFailures >= n.cfg.MaxSearchFailures {
			n.failed = true
			n.logger.Warn("no path found, giving up on goal",
				slog.Int("attempts", n.searchFailures),
				slog.String("goal", fmt.Sprint(n.goal)))
			return
		}
		n.pending = CauseSearchFailed
		return
	}

	p, err := n.truncate(res.Path)
	if err != nil {
		n.logger.Error("truncate path", slog.String("error", err.Error()))
		n.pending = CauseCommitFailed
		return
	}

	if o.trigger == TriggerPlanAhead && n.exec.State() == execution.StateExecuting {
		if err := n.exec.Extend(p); err != nil {
			n.logger.Debug("plan-ahead segment not spliced", slog.String("error", err.Error()))
			return
		}
		n.prevPath = n.exec.Path().Positions()
		n.plannedAhead = false
		rep.Extended = true
		return
	}

	maxDist := n.cfg.Execution.MaxDistFromPath
	if maxDist <= 0 {
		maxDist = execution.DefaultConfig().MaxDistFromPath
	}
	if n.deps.Agent.Position().DistanceSq(p.Start()) > maxDist*maxDist {
		n.logger.Info("search result starts away from the agent",
			slog.String("start", p.Start().String()),
			slog.String("agent", n.deps.Agent.Position().String()))
		n.pending = CauseStaleStart
		return
	}
	n.commitLocked(ctx, p, rep)
}

// truncate applies MaxPathLength. Truncated paths are re-assembled so the
// executor can still substitute movements on them.
func (n *Navigator) truncate(p path.Path) (path.Path, error) {
	if n.cfg.MaxPathLength == 0 || p.Length() <= n.cfg.MaxPathLength {
		return p, nil
	}
	cut := path.NewCutoff(p, n.cfg.MaxPathLength)
	return path.Build(cut.Positions(), cut.Movements(), cut.Goal(), cut.NumNodesConsidered())
}

func (n *Navigator) commitLocked(ctx context.Context, p path.Path, rep *TickReport) {
	ctx, span := n.tracer.Start(ctx, "nav.commit", trace.WithAttributes(
		attribute.Int("nav.length", p.Length()),
		attribute.Float64("nav.cost", p.Cost()),
		attribute.Bool("nav.reaches_goal", p.ReachesGoal()),
	))
	defer span.End()

	if err := n.exec.Commit(p); err != nil {
		telemetry.RecordError(span, err)
		telemetry.LoggerWithTrace(ctx, n.logger).Error("commit path", slog.String("error", err.Error()))
		n.pending = CauseCommitFailed
		return
	}
	telemetry.SetSpanOK(span)
	n.commits++
	n.searchFailures = 0
	n.plannedAhead = false
	n.prevPath = p.Positions()
	n.deps.Metrics.RecordCommit(ctx, p.Length())
	rep.Committed = true
}

func (n *Navigator) onAbandonLocked(ctx context.Context, sig recovery.Signal) {
	n.lastSignal = &sig
	n.appendLocked(ctx, history.KindRecovery, func(e *history.Entry) { e.Recovery = &sig })
	if n.searching && n.searchTrigger == TriggerPlanAhead {
		n.cancelSearchLocked()
	}
	if p := n.exec.Path(); p != nil {
		n.prevPath = p.Positions()
	}
	n.pending = CauseAbandoned
}

func (n *Navigator) onCompletedLocked(ctx context.Context, rep *TickReport) {
	pos := n.deps.Agent.Position()
	if n.goal.IsInGoal(pos.X, pos.Y, pos.Z) {
		n.arrived = true
		n.cancelSearchLocked()
		n.deps.Metrics.RecordArrival(ctx)
		n.logger.Info("goal reached", slog.String("pos", pos.String()))
		rep.Arrived = true
		return
	}
	if n.searching || n.pending != "" {
		return
	}
	// End of a partial segment without a spliced continuation.
	n.startSearchLocked(ctx, TriggerSegment, pos, n.prevPath)
}

func (n *Navigator) maybePlanAheadLocked(ctx context.Context) {
	if n.cfg.PlanAheadMovements == 0 || n.searching || n.pending != "" || n.plannedAhead {
		return
	}
	p := n.exec.Path()
	if p == nil || p.ReachesGoal() {
		return
	}
	if p.Length()-1-n.exec.Index() > n.cfg.PlanAheadMovements {
		return
	}
	n.plannedAhead = true
	n.startSearchLocked(ctx, TriggerPlanAhead, p.Dest(), nil)
}

func (n *Navigator) replanLocked(ctx context.Context, rep *TickReport) {
	if n.pending == "" || n.searching || n.goal == nil || n.arrived || n.failed {
		return
	}
	cause := n.pending
	if !n.limiter.AllowN(n.clock(), 1) {
		n.throttled++
		n.deps.Metrics.RecordReplan(ctx, cause, true)
		rep.Throttled = true
		return
	}

	ctx, span := n.tracer.Start(ctx, "nav.replan", trace.WithAttributes(attribute.String("nav.cause", cause)))
	defer span.End()

	n.pending = ""
	n.replans++
	n.deps.Metrics.RecordReplan(ctx, cause, false)
	telemetry.LoggerWithTrace(ctx, n.logger).Info("replanning",
		slog.String("cause", cause),
		slog.Int("active_failures", len(n.exec.Memory().Active(n.clock()))))
	n.startSearchLocked(ctx, cause, n.deps.Agent.Position(), n.prevPath)
	rep.Replanned = true
}

func (n *Navigator) appendLocked(ctx context.Context, kind history.Kind, fill func(*history.Entry)) {
	if n.deps.History == nil {
		return
	}
	e := history.NewEntry(n.runID, kind, n.clock())
	if n.goal != nil {
		e.Goal = fmt.Sprint(n.goal)
	}
	fill(&e)
	if err := n.deps.History.Append(ctx, e); err != nil {
		n.logger.Warn("append history", slog.String("kind", string(kind)), slog.String("error", err.Error()))
	}
}

func summarize(o outcome) history.Search {
	res := o.result
	s := history.Search{
		Trigger:    o.trigger,
		Result:     res.Type.String(),
		Start:      o.start,
		Nodes:      res.NumNodesConsidered,
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
	}
	if res.Path != nil {
		dest := res.Path.Dest()
		s.Dest = &dest
		s.Length = res.Path.Length()
		s.Cost = res.Path.Cost()
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	return s
}
