// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianNav/services/nav/bias"
	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
)

// constGoal is never satisfied and returns a fixed heuristic.
type constGoal float64

func (constGoal) IsInGoal(int, int, int) bool     { return false }
func (g constGoal) Heuristic(int, int, int) float64 { return float64(g) }

// step is a unit-cost flat movement used by planeProvider.
type step struct {
	src, dest gridpos.Pos
	cost      float64
}

func (s step) Src() gridpos.Pos  { return s.src }
func (s step) Dest() gridpos.Pos { return s.dest }
func (s step) Cost() float64     { return s.cost }
func (s step) Kind() string      { return "walk" }
func (s step) Tick(context.Context, movement.TickContext) movement.Outcome {
	return movement.Outcome{Status: movement.StatusSuccess}
}
func (s step) Reset()  {}
func (s step) Cancel() {}

// planeProvider is a flat y=0 plane with 4-neighbour moves, optionally
// bounded and with blocked cells.
type planeProvider struct {
	blocked  map[gridpos.Pos]bool
	bound    int // 0 means unbounded
	expanded atomic.Int64
	onExpand func(n int64)
}

func (p *planeProvider) Movements(_ context.Context, from gridpos.Pos) ([]movement.Movement, error) {
	n := p.expanded.Add(1)
	if p.onExpand != nil {
		p.onExpand(n)
	}
	out := make([]movement.Movement, 0, 4)
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		dest := from.Offset(d[0], 0, d[1])
		if p.bound > 0 && (abs(dest.X) > p.bound || abs(dest.Z) > p.bound) {
			continue
		}
		if p.blocked[dest] {
			continue
		}
		out = append(out, step{src: from, dest: dest, cost: 1})
	}
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestFinder_StraightLine(t *testing.T) {
	start := gridpos.New(0, 0, 0)
	target := gridpos.New(10, 0, 0)
	f := NewFinder(DefaultOptions(), nil)

	res := f.Find(context.Background(), Request{
		Start:    start,
		Goal:     goal.NewBlock(target),
		Provider: &planeProvider{},
	})

	require.Equal(t, ResultSuccessToGoal, res.Type, "err: %v", res.Err)
	require.NotNil(t, res.Path)
	p := res.Path
	assert.Equal(t, 11, p.Length())
	assert.Len(t, p.Movements(), 10)
	assert.Equal(t, start, p.Start())
	assert.Equal(t, target, p.Dest())
	assert.True(t, p.ReachesGoal())
	assert.NoError(t, p.SanityCheck())
	assert.GreaterOrEqual(t, res.NumNodesConsidered, 10)
	assert.Equal(t, res.NumNodesConsidered, p.NumNodesConsidered())
	assert.InDelta(t, 10.0, p.Cost(), 1e-9)

	for i := 1; i < p.Length(); i++ {
		assert.Greater(t, p.CumulativeCost(i), p.CumulativeCost(i-1))
	}
}

func TestFinder_StartInGoal(t *testing.T) {
	start := gridpos.New(3, 0, 3)
	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
		Start:    start,
		Goal:     goal.NewBlock(start),
		Provider: &planeProvider{},
	})
	require.Equal(t, ResultSuccessToGoal, res.Type)
	assert.Equal(t, 1, res.Path.Length())
	assert.Empty(t, res.Path.Movements())
}

func TestFinder_RoutesAroundWall(t *testing.T) {
	// Wall at x=5 for z in [-3, 3].
	blocked := map[gridpos.Pos]bool{}
	for z := -3; z <= 3; z++ {
		blocked[gridpos.New(5, 0, z)] = true
	}
	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(10, 0, 0)),
		Provider: &planeProvider{blocked: blocked},
	})
	require.Equal(t, ResultSuccessToGoal, res.Type)
	for _, pos := range res.Path.Positions() {
		assert.False(t, blocked[pos], "path crosses wall at %s", pos)
	}
	// Detour via z=±4 adds 8 lateral steps.
	assert.InDelta(t, 18.0, res.Path.Cost(), 1e-9)
}

func TestFinder_InvalidHeuristicIsException(t *testing.T) {
	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     constGoal(math.NaN()),
		Provider: &planeProvider{},
	})
	assert.Equal(t, ResultException, res.Type)
	assert.ErrorIs(t, res.Err, ErrInvalidHeuristic)
	assert.Nil(t, res.Path)
}

func TestFinder_CompositeWithNaNMemberIsException(t *testing.T) {
	goals := map[string]goal.Composite{
		"nan member": {goal.NewBlock(gridpos.New(5, 0, 0)), constGoal(math.NaN())},
		"all nan":    {constGoal(math.NaN())},
		"empty":      {},
	}
	for name, g := range goals {
		t.Run(name, func(t *testing.T) {
			table := NewNodeTable(0)
			_, err := table.GetOrCreate(gridpos.New(0, 0, 0), g)
			assert.ErrorIs(t, err, ErrInvalidHeuristic)

			res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
				Start:    gridpos.New(0, 0, 0),
				Goal:     g,
				Provider: &planeProvider{},
			})
			assert.Equal(t, ResultException, res.Type)
			assert.ErrorIs(t, res.Err, ErrInvalidHeuristic)
		})
	}
}

func TestFinder_InvalidRequest(t *testing.T) {
	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{Start: gridpos.New(0, 0, 0)})
	assert.Equal(t, ResultException, res.Type)
	assert.ErrorIs(t, res.Err, ErrInvalidRequest)
}

func TestFinder_ReuseRejected(t *testing.T) {
	f := NewFinder(DefaultOptions(), nil)
	req := Request{Start: gridpos.New(0, 0, 0), Goal: goal.NewBlock(gridpos.New(1, 0, 0)), Provider: &planeProvider{}}
	require.Equal(t, ResultSuccessToGoal, f.Find(context.Background(), req).Type)
	res := f.Find(context.Background(), req)
	assert.ErrorIs(t, res.Err, ErrFinderReused)
}

func TestFinder_ExhaustedNearStartIsFailure(t *testing.T) {
	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(50, 0, 0)),
		Provider: &planeProvider{bound: 3},
	})
	assert.Equal(t, ResultFailure, res.Type)
	assert.Nil(t, res.Path)
	assert.Equal(t, 49, res.NumNodesConsidered, "every cell of the 7x7 box expanded once")
}

func TestFinder_ExhaustedFarFromStartIsSegment(t *testing.T) {
	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(50, 0, 0)),
		Provider: &planeProvider{bound: 8},
	})
	require.Equal(t, ResultSuccessSegment, res.Type)
	require.NotNil(t, res.Path)
	assert.False(t, res.Path.ReachesGoal())
	assert.Greater(t, res.Path.Dest().DistanceSq(gridpos.New(0, 0, 0)), MinDistPath*MinDistPath)
	assert.NoError(t, res.Path.SanityCheck())
}

func TestFinder_NodeBudget(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxNodes = 20
	res := NewFinder(opts, nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(100, 0, 0)),
		Provider: &planeProvider{},
	})
	assert.Equal(t, ResultSuccessSegment, res.Type)
	assert.Equal(t, 20, res.NumNodesConsidered)
}

func TestFinder_CancelReturnsPartial(t *testing.T) {
	f := NewFinder(DefaultOptions(), nil)
	provider := &planeProvider{}
	provider.onExpand = func(n int64) {
		if n == 20 {
			f.Cancel()
		}
	}
	res := f.Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(100, 0, 0)),
		Provider: provider,
	})
	require.Equal(t, ResultCancellation, res.Type)
	assert.True(t, f.Canceled())
	assert.Equal(t, 20, res.NumNodesConsidered)
	require.NotNil(t, res.Path, "best partial path is carried on cancel")
	assert.Greater(t, res.Path.Dest().X, MinDistPath)
	assert.NoError(t, res.Path.SanityCheck())
}

func TestFinder_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewFinder(DefaultOptions(), nil).Find(ctx, Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(100, 0, 0)),
		Provider: &planeProvider{},
	})
	assert.Equal(t, ResultCancellation, res.Type)
	assert.Nil(t, res.Path, "nothing usable before the first expansion")
	assert.Equal(t, 0, res.NumNodesConsidered)
}

func TestFinder_FailureTimeout(t *testing.T) {
	var now atomic.Int64
	opts := DefaultOptions()
	opts.FailureTimeout = time.Second
	opts.Clock = func() time.Time {
		return time.Unix(0, now.Add(int64(10*time.Second)))
	}
	res := NewFinder(opts, nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(100, 0, 0)),
		Provider: &planeProvider{},
	})
	assert.Equal(t, ResultFailure, res.Type)
	assert.Equal(t, 0, res.NumNodesConsidered)
	assert.Positive(t, res.Duration)
}

func TestFinder_ProviderErrorDropsNode(t *testing.T) {
	plane := &planeProvider{}
	failing := movement.ProviderFunc(func(ctx context.Context, from gridpos.Pos) ([]movement.Movement, error) {
		if from == gridpos.New(1, 0, 0) {
			return nil, errors.New("chunk not loaded")
		}
		return plane.Movements(ctx, from)
	})
	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(4, 0, 0)),
		Provider: failing,
	})
	require.Equal(t, ResultSuccessToGoal, res.Type)
	assert.NotContains(t, res.Path.Positions(), gridpos.New(1, 0, 0))
}

func TestFinder_UnreachableEdgeAvoided(t *testing.T) {
	now := time.Now()
	mem := recovery.NewFailureMemory(time.Minute)
	mem.RecordFailure(recovery.Edge{Src: gridpos.New(0, 0, 0), Dest: gridpos.New(1, 0, 0)},
		"walk", movement.ReasonUnreachable, now)
	b := bias.NewBuilder().Failures(mem.Active(now), 2).Build()

	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(3, 0, 0)),
		Provider: &planeProvider{},
		Bias:     b,
	})
	require.Equal(t, ResultSuccessToGoal, res.Type)
	assert.NotEqual(t, gridpos.New(1, 0, 0), res.Path.Position(1))
	assert.InDelta(t, 5.0, res.Path.Cost(), 1e-9)
}

func TestFinder_BacktrackBiasChangesRoute(t *testing.T) {
	line := []gridpos.Pos{gridpos.New(1, 0, 0), gridpos.New(2, 0, 0), gridpos.New(3, 0, 0)}
	b := bias.NewBuilder().Backtrack(line, 10).Build()
	res := NewFinder(DefaultOptions(), nil).Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(4, 0, 0)),
		Provider: &planeProvider{},
		Bias:     b,
	})
	require.Equal(t, ResultSuccessToGoal, res.Type)
	for _, pos := range line {
		assert.NotContains(t, res.Path.Positions(), pos)
	}
}

func TestFinder_LinkedListAgreesWithHeap(t *testing.T) {
	blocked := map[gridpos.Pos]bool{}
	for x := -2; x <= 6; x++ {
		blocked[gridpos.New(x, 0, 3)] = true
	}
	req := func() Request {
		return Request{
			Start:    gridpos.New(0, 0, 0),
			Goal:     goal.NewBlock(gridpos.New(2, 0, 7)),
			Provider: &planeProvider{blocked: blocked},
		}
	}
	heapRes := NewFinder(DefaultOptions(), nil).Find(context.Background(), req())

	opts := DefaultOptions()
	opts.NewOpenSet = func(t *NodeTable) OpenSet { return NewLinkedListOpenSet(t) }
	listRes := NewFinder(opts, nil).Find(context.Background(), req())

	require.Equal(t, ResultSuccessToGoal, heapRes.Type)
	require.Equal(t, ResultSuccessToGoal, listRes.Type)
	assert.InDelta(t, heapRes.Path.Cost(), listRes.Path.Cost(), 1e-9)
}

func TestFinder_SetEpsilonMidSearch(t *testing.T) {
	f := NewFinder(DefaultOptions(), nil)
	provider := &planeProvider{}
	provider.onExpand = func(n int64) {
		if n == 3 {
			f.SetEpsilon(3)
		}
	}
	res := f.Find(context.Background(), Request{
		Start:    gridpos.New(0, 0, 0),
		Goal:     goal.NewBlock(gridpos.New(6, 0, 6)),
		Provider: provider,
	})
	require.Equal(t, ResultSuccessToGoal, res.Type)
	assert.Equal(t, 3.0, f.Epsilon())
	assert.NoError(t, res.Path.SanityCheck())

	f.SetEpsilon(-1)
	assert.Equal(t, 3.0, f.Epsilon(), "invalid epsilon ignored")
}

func TestResultType_String(t *testing.T) {
	assert.Equal(t, "success_to_goal", ResultSuccessToGoal.String())
	assert.Equal(t, "success_segment", ResultSuccessSegment.String())
	assert.Equal(t, "failure", ResultFailure.String())
	assert.Equal(t, "cancellation", ResultCancellation.String())
	assert.Equal(t, "exception", ResultException.String())
	assert.True(t, ResultCancellation.HasPath())
	assert.False(t, ResultFailure.HasPath())
}
