// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bias builds the sparse cost multipliers applied during a search.
//
// Three independent contributions are merged by multiplication:
//
//   - backtrack: every position of the previous path gets a coefficient, so a
//     replanned route is pushed away from (or toward) cells it already used.
//   - hazards: each hazard spreads a radial factor around its center; the
//     falloff shape belongs to the hazard.
//   - failures: edges that recently failed during execution get a per-edge
//     factor; unreachable edges become impassable.
//
// A Map is built once before a search and is read-only afterwards, so the
// search may read it without locking.
package bias

import (
	"math"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
)

// Neutral is the factor of a position or edge with no bias.
const Neutral = 1.0

type edgeKey struct {
	src, dest gridpos.Key
}

// Map is a frozen set of cost multipliers.
//
// A nil *Map is valid and neutral everywhere.
//
// Thread Safety: Safe for concurrent reads.
type Map struct {
	positions map[gridpos.Key]float64
	edges     map[edgeKey]float64
}

// Calculate returns the factor for the position with the given key.
func (m *Map) Calculate(key gridpos.Key) float64 {
	if m == nil {
		return Neutral
	}
	if f, ok := m.positions[key]; ok {
		return f
	}
	return Neutral
}

// EdgeFactor returns the factor for the edge src → dest.
func (m *Map) EdgeFactor(src, dest gridpos.Key) float64 {
	if m == nil || len(m.edges) == 0 {
		return Neutral
	}
	if f, ok := m.edges[edgeKey{src: src, dest: dest}]; ok {
		return f
	}
	return Neutral
}

// Apply multiplies cost by the position factor of dest and the edge factor.
func (m *Map) Apply(cost float64, src, dest gridpos.Key) float64 {
	if m == nil {
		return cost
	}
	return cost * m.Calculate(dest) * m.EdgeFactor(src, dest)
}

// Positions returns how many positions carry a non-default factor.
func (m *Map) Positions() int {
	if m == nil {
		return 0
	}
	return len(m.positions)
}

// Edges returns how many edges carry a non-default factor.
func (m *Map) Edges() int {
	if m == nil {
		return 0
	}
	return len(m.edges)
}

// Hazard is a danger source that penalises cells around it.
type Hazard interface {
	// Center is the hazard position.
	Center() gridpos.Pos

	// Radius bounds the affected sphere.
	Radius() int

	// Factor returns the multiplier for a cell at squared distance distSq
	// from the center (0 <= distSq <= Radius²).
	Factor(distSq int) float64
}

// ConstantHazard applies the same coefficient to the whole sphere.
type ConstantHazard struct {
	Pos         gridpos.Pos
	R           int
	Coefficient float64
}

func (h ConstantHazard) Center() gridpos.Pos { return h.Pos }
func (h ConstantHazard) Radius() int         { return h.R }
func (h ConstantHazard) Factor(int) float64  { return h.Coefficient }

// LinearHazard peaks at the center and decays linearly to neutral at the
// edge of the sphere.
type LinearHazard struct {
	Pos  gridpos.Pos
	R    int
	Peak float64
}

func (h LinearHazard) Center() gridpos.Pos { return h.Pos }
func (h LinearHazard) Radius() int         { return h.R }

func (h LinearHazard) Factor(distSq int) float64 {
	if h.R <= 0 {
		return h.Peak
	}
	frac := 1 - math.Sqrt(float64(distSq))/float64(h.R)
	if frac < 0 {
		frac = 0
	}
	return Neutral + (h.Peak-Neutral)*frac
}

// Builder accumulates contributions before a search.
//
// Thread Safety: Not safe for concurrent use.
type Builder struct {
	positions map[gridpos.Key]float64
	edges     map[edgeKey]float64
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		positions: make(map[gridpos.Key]float64),
		edges:     make(map[edgeKey]float64),
	}
}

func (b *Builder) mergePosition(key gridpos.Key, factor float64) {
	if cur, ok := b.positions[key]; ok {
		b.positions[key] = cur * factor
		return
	}
	b.positions[key] = factor
}

// Backtrack assigns coefficient to every position of the previous path.
//
// Inputs:
//   - positions: Positions of the previously executed or planned path.
//   - coefficient: The multiplier. Neutral (1.0) disables the contribution.
func (b *Builder) Backtrack(positions []gridpos.Pos, coefficient float64) *Builder {
	if coefficient == Neutral {
		return b
	}
	for _, p := range positions {
		b.mergePosition(p.Key(), coefficient)
	}
	return b
}

// Hazards spreads each hazard's factor over its sphere.
func (b *Builder) Hazards(hazards ...Hazard) *Builder {
	for _, h := range hazards {
		r := h.Radius()
		if r < 0 {
			continue
		}
		c := h.Center()
		rSq := r * r
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					d := dx*dx + dy*dy + dz*dz
					if d > rSq {
						continue
					}
					f := h.Factor(d)
					if f == Neutral {
						continue
					}
					b.mergePosition(gridpos.Pack(c.X+dx, c.Y+dy, c.Z+dz), f)
				}
			}
		}
	}
	return b
}

// Failures penalises edges from live failure records.
//
// Description:
//
//	Each edge gets penalty^attempts. An edge whose last failure was
//	unreachable gets +Inf and is skipped by the search. Callers pass only
//	live records (FailureMemory.Active already filters expired ones).
//
// Inputs:
//   - records: Live failure records.
//   - penalty: Per-attempt multiplier. Neutral disables non-fatal penalties.
func (b *Builder) Failures(records []recovery.Record, penalty float64) *Builder {
	for _, rec := range records {
		k := edgeKey{src: rec.Edge.Src.Key(), dest: rec.Edge.Dest.Key()}
		if rec.Reason == movement.ReasonUnreachable {
			b.edges[k] = math.Inf(1)
			continue
		}
		if penalty == Neutral {
			continue
		}
		b.edges[k] = math.Pow(penalty, float64(rec.Attempts))
	}
	return b
}

// Build freezes the accumulated contributions into a Map.
//
// The builder must not be used afterwards.
func (b *Builder) Build() *Map {
	m := &Map{positions: b.positions, edges: b.edges}
	b.positions = nil
	b.edges = nil
	return m
}
