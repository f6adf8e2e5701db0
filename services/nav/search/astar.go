// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search implements goal-directed A* over the movement graph.
//
// The graph is never materialised: neighbours come from a movement.Provider
// as nodes are expanded. There is no closed set; a node whose cost improves
// after expansion is queued again.
//
// When the goal is not reached the finder falls back to the best partial
// path, chosen by scoring every relaxed node as h + g/c for a ladder of
// coefficients c and picking the first candidate that got far enough from
// the start to be worth executing.
package search

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianNav/services/nav/bias"
	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
	"github.com/AleutianAI/AleutianNav/services/nav/path"
)

// Coefficients is the ladder used for best-so-far tracking. Small values
// favour nodes near the goal; large values favour cheap routes.
var Coefficients = [...]float64{1.5, 2, 2.5, 3, 4, 5, 10}

const (
	// MinDistPath is how far (blocks) a partial path must leave the start.
	MinDistPath = 5

	// DefaultMinImprovement is the smallest cost decrease that relaxes a node.
	DefaultMinImprovement = 0.01

	// DefaultPrimaryTimeout ends a search that already has a usable partial.
	DefaultPrimaryTimeout = 500 * time.Millisecond

	// DefaultFailureTimeout ends any search.
	DefaultFailureTimeout = 2 * time.Second

	// timeCheckInterval is how many expansions pass between clock reads.
	// Must be a power of two.
	timeCheckInterval = 64
)

// Options tunes a Finder.
type Options struct {
	// Epsilon weights the heuristic. 1 is plain A*.
	Epsilon float64

	// PrimaryTimeout stops the search once a usable partial path exists.
	PrimaryTimeout time.Duration

	// FailureTimeout stops the search unconditionally.
	FailureTimeout time.Duration

	// MaxNodes caps expansions. 0 means unlimited.
	MaxNodes int

	// MinImprovement is the relaxation threshold.
	MinImprovement float64

	// NewOpenSet selects the open set. Nil uses the binary heap.
	NewOpenSet OpenSetFactory

	// Clock returns the current time. Nil uses time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the production search options.
func DefaultOptions() Options {
	return Options{
		Epsilon:        1,
		PrimaryTimeout: DefaultPrimaryTimeout,
		FailureTimeout: DefaultFailureTimeout,
		MinImprovement: DefaultMinImprovement,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Epsilon <= 0 || math.IsNaN(o.Epsilon) {
		o.Epsilon = d.Epsilon
	}
	if o.PrimaryTimeout <= 0 {
		o.PrimaryTimeout = d.PrimaryTimeout
	}
	if o.FailureTimeout <= 0 {
		o.FailureTimeout = d.FailureTimeout
	}
	if o.MinImprovement <= 0 {
		o.MinImprovement = d.MinImprovement
	}
	if o.NewOpenSet == nil {
		o.NewOpenSet = func(t *NodeTable) OpenSet { return NewBinaryHeapOpenSet(t) }
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Request describes one search.
type Request struct {
	// Start is where the search begins.
	Start gridpos.Pos

	// Goal is the search target.
	Goal goal.Goal

	// Provider generates neighbours.
	Provider movement.Provider

	// Bias scales edge costs. Nil is neutral.
	Bias *bias.Map
}

// Finder runs a single A* search.
//
// Description:
//
//	Create one Finder per search. Cancel and SetEpsilon may be called from
//	any goroutine while Find runs; both take effect between expansions.
//
// Thread Safety: Find must be called once. Cancel and SetEpsilon are safe
// for concurrent use.
type Finder struct {
	opts     Options
	logger   *slog.Logger
	canceled atomic.Bool
	started  atomic.Bool
	epsilon  atomic.Uint64
}

// NewFinder creates a finder.
//
// Inputs:
//   - opts: Search options. Zero fields take defaults.
//   - logger: Logger. Nil uses slog.Default().
func NewFinder(opts Options, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Finder{opts: opts.withDefaults(), logger: logger}
	f.epsilon.Store(math.Float64bits(f.opts.Epsilon))
	return f
}

// Cancel requests cooperative cancellation.
func (f *Finder) Cancel() {
	f.canceled.Store(true)
}

// Canceled reports whether Cancel was called.
func (f *Finder) Canceled() bool {
	return f.canceled.Load()
}

// SetEpsilon changes the heuristic weight. The open set is rebuilt before
// the next expansion. Non-positive values are ignored.
func (f *Finder) SetEpsilon(eps float64) {
	if eps <= 0 || math.IsNaN(eps) || math.IsInf(eps, 0) {
		return
	}
	f.epsilon.Store(math.Float64bits(eps))
}

// Epsilon returns the current heuristic weight.
func (f *Finder) Epsilon() float64 {
	return math.Float64frombits(f.epsilon.Load())
}

// run is the mutable state of one search.
type run struct {
	req       Request
	table     *NodeTable
	open      OpenSet
	best      [len(Coefficients)]NodeID
	bestScore [len(Coefficients)]float64
	startID   NodeID
}

// Find searches from req.Start toward req.Goal.
//
// Description:
//
//	Expands nodes in CombinedCost order until the goal is extracted, the
//	open set is exhausted, the node budget or a timeout is hit, or the
//	search is canceled. Provider errors drop the node being expanded; a
//	context error cancels.
//
// Inputs:
//   - ctx: Cancels the search between expansions.
//   - req: The request.
//
// Outputs:
//   - Result: Never nil-typed. Path is set for success and, when a usable
//     partial exists, for cancellation.
func (f *Finder) Find(ctx context.Context, req Request) Result {
	begin := f.opts.Clock()
	res := f.find(ctx, req, begin)
	res.Duration = f.opts.Clock().Sub(begin)
	observe(res)

	attrs := []any{
		slog.String("result", res.Type.String()),
		slog.String("start", req.Start.String()),
		slog.Int("nodes", res.NumNodesConsidered),
		slog.Duration("duration", res.Duration),
	}
	if res.Path != nil {
		attrs = append(attrs, slog.Int("length", res.Path.Length()), slog.Float64("cost", res.Path.Cost()))
	}
	if res.Type == ResultException {
		f.logger.Error("search aborted", append(attrs, slog.String("error", res.Err.Error()))...)
	} else {
		f.logger.Debug("search finished", attrs...)
	}
	return res
}

func (f *Finder) find(ctx context.Context, req Request, begin time.Time) Result {
	if !f.started.CompareAndSwap(false, true) {
		return Result{Type: ResultException, Err: ErrFinderReused}
	}
	if req.Goal == nil || req.Provider == nil {
		return Result{Type: ResultException, Err: ErrInvalidRequest}
	}

	table := NewNodeTable(initialHeapCapacity)
	r := &run{req: req, table: table, open: f.opts.NewOpenSet(table)}

	startID, err := table.GetOrCreate(req.Start, req.Goal)
	if err != nil {
		return Result{Type: ResultException, Err: err}
	}
	r.startID = startID
	eps := f.Epsilon()
	startNode := table.Node(startID)
	startNode.Cost = 0
	startNode.CombinedCost = startNode.EstimatedCostToGoal * eps
	for i := range r.best {
		r.best[i] = startID
		r.bestScore[i] = startNode.EstimatedCostToGoal
	}
	r.open.Insert(startID)

	minImprovement := f.opts.MinImprovement
	considered := 0

	for !r.open.IsEmpty() {
		if f.canceled.Load() || ctx.Err() != nil {
			return r.partial(ResultCancellation, considered)
		}
		if considered&(timeCheckInterval-1) == 0 {
			elapsed := f.opts.Clock().Sub(begin)
			if elapsed >= f.opts.FailureTimeout {
				break
			}
			if elapsed >= f.opts.PrimaryTimeout && r.bestPartial() != NoNode {
				break
			}
		}
		if f.opts.MaxNodes > 0 && considered >= f.opts.MaxNodes {
			break
		}
		if e := f.Epsilon(); e != eps {
			eps = e
			r.open.RebuildWithEpsilon(eps)
			openSetRebuilds.Inc()
		}

		curID := r.open.RemoveLowest()
		considered++
		cur := table.Node(curID)
		curPos, curCost := cur.Pos, cur.Cost

		if req.Goal.IsInGoal(curPos.X, curPos.Y, curPos.Z) {
			return r.assemble(ResultSuccessToGoal, curID, considered)
		}

		moves, err := req.Provider.Movements(ctx, curPos)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return r.partial(ResultCancellation, considered)
			}
			f.logger.Debug("movement provider failed",
				slog.String("pos", curPos.String()),
				slog.String("error", err.Error()))
			continue
		}

		curKey := curPos.Key()
		for _, m := range moves {
			if m.Src() != curPos {
				continue
			}
			dest := m.Dest()
			if !dest.InRange() {
				continue
			}
			actionCost := req.Bias.Apply(m.Cost(), curKey, dest.Key())
			if !movement.Passable(actionCost) {
				continue
			}
			nbID, err := table.GetOrCreate(dest, req.Goal)
			if err != nil {
				return Result{Type: ResultException, NumNodesConsidered: considered, Err: err}
			}
			nb := table.Node(nbID)
			tentative := curCost + actionCost
			if nb.Cost-tentative <= minImprovement {
				continue
			}
			nb.Previous = curID
			nb.PreviousMovement = m
			nb.Cost = tentative
			nb.CombinedCost = tentative + nb.EstimatedCostToGoal*eps
			if nb.IsOpen() {
				r.open.Update(nbID)
			} else {
				r.open.Insert(nbID)
			}
			for i, c := range Coefficients {
				score := nb.EstimatedCostToGoal + nb.Cost/c
				if r.bestScore[i]-score > minImprovement {
					r.bestScore[i] = score
					r.best[i] = nbID
				}
			}
		}
	}

	return r.partial(ResultSuccessSegment, considered)
}

// bestPartial returns the first best-so-far node far enough from the start.
func (r *run) bestPartial() NodeID {
	for _, id := range r.best {
		if r.table.Node(id).Pos.DistanceSq(r.req.Start) > MinDistPath*MinDistPath {
			return id
		}
	}
	return NoNode
}

// partial returns the best partial path with the given type, or
// ResultFailure (ResultCancellation without path) when none is usable.
func (r *run) partial(t ResultType, considered int) Result {
	id := r.bestPartial()
	if id == NoNode {
		if t == ResultCancellation {
			return Result{Type: ResultCancellation, NumNodesConsidered: considered}
		}
		return Result{Type: ResultFailure, NumNodesConsidered: considered}
	}
	return r.assemble(t, id, considered)
}

func (r *run) assemble(t ResultType, id NodeID, considered int) Result {
	positions, movements := r.table.Trace(id)
	p, err := path.Build(positions, movements, r.req.Goal, considered)
	if err != nil {
		return Result{Type: ResultException, NumNodesConsidered: considered, Err: err}
	}
	return Result{Type: t, Path: p, NumNodesConsidered: considered}
}
