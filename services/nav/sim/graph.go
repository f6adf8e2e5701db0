// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sim

import (
	"context"
	"math"
	"sync"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
)

// Movement kinds produced by Graph.
const (
	KindTraverse = "traverse"
	KindSneak    = "sneak"
	KindDiagonal = "diagonal"
	KindAscend   = "ascend"
	KindDescend  = "descend"
)

// Edge costs in ticks.
const (
	CostTraverse = 1.0
	CostSneak    = 3.0
	CostAscend   = 2.0
	CostDescend  = 1.5
)

// CostDiagonal is the cost of a diagonal step.
var CostDiagonal = math.Sqrt2

var cardinals = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

var diagonals = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

// Agent is a point agent in the world.
//
// Thread Safety: Safe for concurrent use.
type Agent struct {
	mu  sync.RWMutex
	pos gridpos.Pos
}

// NewAgent returns an agent at pos.
func NewAgent(pos gridpos.Pos) *Agent {
	return &Agent{pos: pos}
}

// Position implements movement.Agent.
func (a *Agent) Position() gridpos.Pos {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pos
}

// Teleport moves the agent without a movement, e.g. to simulate knockback.
func (a *Agent) Teleport(pos gridpos.Pos) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos = pos
}

type faultKey struct {
	src, dest gridpos.Key
	kind      string
}

type fault struct {
	remaining int
	reason    movement.FailureReason
}

// Graph generates movements over a World and injects faults into them.
//
// Thread Safety: Safe for concurrent use.
type Graph struct {
	world *World

	mu     sync.Mutex
	faults map[faultKey]*fault
}

// NewGraph returns a movement graph over w.
func NewGraph(w *World) *Graph {
	return &Graph{world: w, faults: make(map[faultKey]*fault)}
}

// World returns the underlying world.
func (g *Graph) World() *World {
	return g.world
}

// FailEdge makes the next times executions of the src→dest movement of
// kind fail with reason. An empty kind matches every kind. A negative
// times fails forever. ReasonUnreachable ends in StatusUnreachable.
func (g *Graph) FailEdge(src, dest gridpos.Pos, kind string, times int, reason movement.FailureReason) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[faultKey{src: src.Key(), dest: dest.Key(), kind: kind}] = &fault{remaining: times, reason: reason}
}

// consumeFault returns the injected failure for one execution, if any.
func (g *Graph) consumeFault(src, dest gridpos.Pos, kind string) (movement.FailureReason, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range []string{kind, ""} {
		f, ok := g.faults[faultKey{src: src.Key(), dest: dest.Key(), kind: k}]
		if !ok || f.remaining == 0 {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		return f.reason, true
	}
	return movement.ReasonUnknown, false
}

// Movements implements movement.Provider.
//
// Cardinal neighbours at the same height get a traverse and a slower sneak,
// so the executor always has an alternative on flat ground. Diagonals need
// both adjacent cardinal cells clear. Ascend and descend cover one block of
// height change.
func (g *Graph) Movements(ctx context.Context, from gridpos.Pos) ([]movement.Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := g.world
	out := make([]movement.Movement, 0, 12)

	for _, d := range cardinals {
		flat := from.Offset(d[0], 0, d[1])
		switch {
		case w.Standable(flat):
			out = append(out,
				g.newStep(from, flat, KindTraverse, CostTraverse),
				g.newStep(from, flat, KindSneak, CostSneak))
		case w.Standable(flat.Up()) && !w.Solid(from.Up().Up()):
			out = append(out, g.newStep(from, flat.Up(), KindAscend, CostAscend))
		case !w.Solid(flat) && !w.Solid(flat.Up()) && w.Standable(flat.Down()):
			out = append(out, g.newStep(from, flat.Down(), KindDescend, CostDescend))
		}
	}

	for _, d := range diagonals {
		dest := from.Offset(d[0], 0, d[1])
		if !w.Standable(dest) {
			continue
		}
		a, b := from.Offset(d[0], 0, 0), from.Offset(0, 0, d[1])
		if w.Solid(a) || w.Solid(a.Up()) || w.Solid(b) || w.Solid(b.Up()) {
			continue
		}
		out = append(out, g.newStep(from, dest, KindDiagonal, CostDiagonal))
	}
	return out, nil
}

func (g *Graph) newStep(src, dest gridpos.Pos, kind string, cost float64) *step {
	return &step{graph: g, src: src, dest: dest, kind: kind, cost: cost}
}

// step executes one edge: one tick preparing, one waiting, then
// ceil(cost) ticks running before the agent lands on dest.
type step struct {
	graph      *Graph
	src, dest  gridpos.Pos
	kind       string
	cost       float64
	status     movement.Status
	runTicks   int
	canceled   bool
	faultFired bool
}

func (s *step) Src() gridpos.Pos  { return s.src }
func (s *step) Dest() gridpos.Pos { return s.dest }
func (s *step) Cost() float64     { return s.cost }
func (s *step) Kind() string      { return s.kind }

func (s *step) Reset() {
	s.status = movement.StatusPrepping
	s.runTicks = 0
	s.canceled = false
	s.faultFired = false
}

func (s *step) Cancel() {
	s.canceled = true
}

func (s *step) Tick(_ context.Context, tc movement.TickContext) movement.Outcome {
	if s.canceled {
		s.status = movement.StatusCanceled
		return movement.Outcome{Status: s.status}
	}
	switch s.status {
	case movement.StatusPrepping:
		s.status = movement.StatusWaiting
		return movement.Outcome{Status: s.status}
	case movement.StatusWaiting:
		s.status = movement.StatusRunning
		return movement.Outcome{Status: s.status}
	case movement.StatusRunning:
	default:
		return movement.Outcome{Status: s.status}
	}

	if !s.graph.world.Standable(s.dest) {
		s.status = movement.StatusUnreachable
		return movement.Outcome{Status: s.status, Reason: movement.ReasonUnreachable}
	}
	if !s.faultFired {
		s.faultFired = true
		if reason, ok := s.graph.consumeFault(s.src, s.dest, s.kind); ok {
			s.status = movement.StatusFailed
			if reason == movement.ReasonUnreachable {
				s.status = movement.StatusUnreachable
			}
			return movement.Outcome{Status: s.status, Reason: reason}
		}
	}

	s.runTicks++
	if float64(s.runTicks) < math.Ceil(s.cost) {
		return movement.Outcome{Status: movement.StatusRunning}
	}
	if a, ok := tc.Agent.(*Agent); ok {
		a.Teleport(s.dest)
	}
	s.status = movement.StatusSuccess
	return movement.Outcome{Status: s.status}
}
