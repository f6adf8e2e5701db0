// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package goal defines search targets.
//
// A Goal answers two questions for the search: whether a cell satisfies it,
// and a non-negative finite estimate of the remaining cost from a cell.
// Heuristics are expressed in movement cost units where one horizontal
// block costs at least 1.
package goal

import (
	"fmt"
	"math"
	"strings"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
)

// Goal is the target of a search.
type Goal interface {
	// IsInGoal reports whether (x, y, z) satisfies the goal.
	IsInGoal(x, y, z int) bool

	// Heuristic estimates the remaining cost from (x, y, z).
	// Must be finite and non-negative.
	Heuristic(x, y, z int) float64
}

// horizontal returns the octile distance for (dx, dz) with unit straight cost.
func horizontal(dx, dz int) float64 {
	ax, az := math.Abs(float64(dx)), math.Abs(float64(dz))
	straight := math.Abs(ax - az)
	diagonal := math.Min(ax, az)
	return straight + diagonal*math.Sqrt2
}

// Block is satisfied only at one exact position.
type Block struct {
	Pos gridpos.Pos
}

// NewBlock returns a goal for pos.
func NewBlock(pos gridpos.Pos) Block {
	return Block{Pos: pos}
}

// IsInGoal implements Goal.
func (g Block) IsInGoal(x, y, z int) bool {
	return x == g.Pos.X && y == g.Pos.Y && z == g.Pos.Z
}

// Heuristic implements Goal.
func (g Block) Heuristic(x, y, z int) float64 {
	return horizontal(x-g.Pos.X, z-g.Pos.Z) + math.Abs(float64(y-g.Pos.Y))
}

func (g Block) String() string {
	return fmt.Sprintf("Block%s", g.Pos)
}

// Near is satisfied anywhere within Radius (euclidean) of Pos.
type Near struct {
	Pos    gridpos.Pos
	Radius int
}

// IsInGoal implements Goal.
func (g Near) IsInGoal(x, y, z int) bool {
	return gridpos.New(x, y, z).DistanceSq(g.Pos) <= g.Radius*g.Radius
}

// Heuristic implements Goal.
func (g Near) Heuristic(x, y, z int) float64 {
	h := Block{Pos: g.Pos}.Heuristic(x, y, z) - float64(g.Radius)
	if h < 0 {
		return 0
	}
	return h
}

func (g Near) String() string {
	return fmt.Sprintf("Near%s r=%d", g.Pos, g.Radius)
}

// XZ is satisfied at any height above the column (X, Z).
type XZ struct {
	X, Z int
}

// IsInGoal implements Goal.
func (g XZ) IsInGoal(x, _, z int) bool {
	return x == g.X && z == g.Z
}

// Heuristic implements Goal.
func (g XZ) Heuristic(x, _, z int) float64 {
	return horizontal(x-g.X, z-g.Z)
}

func (g XZ) String() string {
	return fmt.Sprintf("XZ(%d,%d)", g.X, g.Z)
}

// Composite is satisfied when any member goal is.
type Composite []Goal

// IsInGoal implements Goal.
func (c Composite) IsInGoal(x, y, z int) bool {
	for _, g := range c {
		if g.IsInGoal(x, y, z) {
			return true
		}
	}
	return false
}

// Heuristic implements Goal. The minimum member heuristic keeps the estimate
// admissible whenever every member is. An empty composite, or any member
// yielding NaN, gives NaN so the search rejects the goal.
func (c Composite) Heuristic(x, y, z int) float64 {
	if len(c) == 0 {
		return math.NaN()
	}
	best := math.Inf(1)
	for _, g := range c {
		h := g.Heuristic(x, y, z)
		if math.IsNaN(h) {
			return h
		}
		best = math.Min(best, h)
	}
	return best
}

func (c Composite) String() string {
	parts := make([]string, 0, len(c))
	for _, g := range c {
		parts = append(parts, fmt.Sprint(g))
	}
	return "Composite[" + strings.Join(parts, ", ") + "]"
}
