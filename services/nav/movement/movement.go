// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package movement defines the boundary contracts between the navigation
// core and the game: movements (graph edges with an execution protocol),
// the movement graph provider, world queries and the agent.
//
// # Ownership
//
// The core never inspects concrete movement kinds. It relies only on the
// capability set {Src, Dest, Cost, Kind, Tick, Reset, Cancel}. Kind is an
// opaque label used to tell alternative movements on the same edge apart in
// failure records.
//
// # Thread Safety
//
// Movements are ticked from a single execution goroutine. Providers may be
// called from a background search goroutine concurrently with ticking, so
// Provider implementations must be safe for concurrent reads.
package movement

import (
	"context"
	"math"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
)

// CostInf marks an edge that must never be taken.
const CostInf = 1_000_000.0

// TickContext is the per-tick state handed to a movement.
type TickContext struct {
	// Tick is the world tick number.
	Tick uint64

	// TicksOnCurrent counts ticks spent on this movement, starting at 0.
	TicksOnCurrent int

	// Agent is the agent executing the movement.
	Agent Agent
}

// Movement is one directed edge of the movement graph together with the
// protocol that carries it out in the world.
type Movement interface {
	// Src is the cell the movement starts from.
	Src() gridpos.Pos

	// Dest is the cell the movement ends in.
	Dest() gridpos.Pos

	// Cost is the precomputed cost used by the search. Values at or above
	// CostInf, NaN and negative values mean "impassable".
	Cost() float64

	// Kind names the movement class ("traverse", "ascend", ...).
	Kind() string

	// Tick advances execution by one world tick and reports the new status.
	Tick(ctx context.Context, tc TickContext) Outcome

	// Reset returns the movement to its initial state so it can be retried.
	Reset()

	// Cancel aborts execution. The next Tick must report StatusCanceled.
	Cancel()
}

// Provider generates the movement graph on demand.
type Provider interface {
	// Movements returns the candidate movements leaving from.
	//
	// May query the world and therefore be slow or fail.
	Movements(ctx context.Context, from gridpos.Pos) ([]Movement, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, from gridpos.Pos) ([]Movement, error)

// Movements implements Provider.
func (f ProviderFunc) Movements(ctx context.Context, from gridpos.Pos) ([]Movement, error) {
	return f(ctx, from)
}

// Block describes what occupies one cell.
type Block struct {
	// Name is a free-form block identifier ("air", "stone", ...).
	Name string

	// Solid blocks cannot be walked through.
	Solid bool

	// Hazardous blocks should be avoided by the bias map.
	Hazardous bool
}

// World answers what occupies a cell. Calls may be slow and may fail.
type World interface {
	BlockAt(ctx context.Context, pos gridpos.Pos) (Block, error)
}

// Agent is the entity executing a path.
type Agent interface {
	// Position returns the cell the agent currently stands in.
	Position() gridpos.Pos
}

// Passable reports whether cost is a usable edge cost.
func Passable(cost float64) bool {
	return !math.IsNaN(cost) && !math.IsInf(cost, 0) && cost >= 0 && cost < CostInf
}

// SameEdge reports whether a and b connect the same two cells.
func SameEdge(a, b Movement) bool {
	return a.Src() == b.Src() && a.Dest() == b.Dest()
}
