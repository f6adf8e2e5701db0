// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sim is a small voxel world used to drive the navigator without a
// game: a sparse block store, a movement graph over it, an agent that
// movements push around, and fault injection for exercising recovery.
package sim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianNav/services/nav/bias"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
)

// ErrOutOfWorld is returned for positions outside the addressable range.
var ErrOutOfWorld = errors.New("position outside the world")

var (
	air   = movement.Block{Name: "air"}
	stone = movement.Block{Name: "stone", Solid: true}
)

// World is a sparse block store. Unset cells are air.
//
// Thread Safety: Safe for concurrent use. The search goroutine reads while
// the tick goroutine may edit.
type World struct {
	mu     sync.RWMutex
	blocks map[gridpos.Key]movement.Block
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{blocks: make(map[gridpos.Key]movement.Block)}
}

// BlockAt implements movement.World.
func (w *World) BlockAt(_ context.Context, pos gridpos.Pos) (movement.Block, error) {
	if !pos.InRange() {
		return movement.Block{}, fmt.Errorf("%w: %s", ErrOutOfWorld, pos)
	}
	return w.block(pos), nil
}

func (w *World) block(pos gridpos.Pos) movement.Block {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if b, ok := w.blocks[pos.Key()]; ok {
		return b
	}
	return air
}

// Set places b at pos. Placing air clears the cell.
func (w *World) Set(pos gridpos.Pos, b movement.Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !b.Solid && !b.Hazardous && (b.Name == "" || b.Name == air.Name) {
		delete(w.blocks, pos.Key())
		return
	}
	w.blocks[pos.Key()] = b
}

// Solid reports whether pos holds a solid block.
func (w *World) Solid(pos gridpos.Pos) bool {
	return w.block(pos).Solid
}

// Fill sets every cell in the box spanned by a and b to blk.
func (w *World) Fill(a, b gridpos.Pos, blk movement.Block) {
	lo := gridpos.New(min(a.X, b.X), min(a.Y, b.Y), min(a.Z, b.Z))
	hi := gridpos.New(max(a.X, b.X), max(a.Y, b.Y), max(a.Z, b.Z))
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				w.Set(gridpos.New(x, y, z), blk)
			}
		}
	}
}

// Floor lays a stone floor at height y under the given x/z rectangle.
func (w *World) Floor(x0, z0, x1, z1, y int) {
	w.Fill(gridpos.New(x0, y, z0), gridpos.New(x1, y, z1), stone)
}

// Standable reports whether an agent two blocks tall can stand at pos:
// solid ground below, body and head free.
func (w *World) Standable(pos gridpos.Pos) bool {
	if !pos.InRange() || !pos.Up().InRange() || !pos.Down().InRange() {
		return false
	}
	return w.Solid(pos.Down()) && !w.Solid(pos) && !w.Solid(pos.Up())
}

// Hazards returns a linear hazard around every hazardous block, sorted by
// position so bias maps are reproducible.
func (w *World) Hazards(radius int, peak float64) []bias.Hazard {
	w.mu.RLock()
	keys := make([]gridpos.Key, 0)
	for k, b := range w.blocks {
		if b.Hazardous {
			keys = append(keys, k)
		}
	}
	w.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]bias.Hazard, 0, len(keys))
	for _, k := range keys {
		out = append(out, bias.LinearHazard{Pos: k.Unpack(), R: radius, Peak: peak})
	}
	return out
}

// Box is a filled cuboid in a scenario file.
type Box struct {
	From      gridpos.Pos `yaml:"from" json:"from"`
	To        gridpos.Pos `yaml:"to" json:"to"`
	Name      string      `yaml:"name" json:"name"`
	Hazardous bool        `yaml:"hazardous" json:"hazardous"`
}

// Scenario describes a world and where the agent starts.
type Scenario struct {
	// Start is the agent's starting cell.
	Start gridpos.Pos `yaml:"start" json:"start"`

	// FloorMin and FloorMax are opposite corners of the stone floor.
	FloorMin gridpos.Pos `yaml:"floor_min" json:"floor_min"`
	FloorMax gridpos.Pos `yaml:"floor_max" json:"floor_max"`

	// Boxes are applied in order after the floor. Boxes named "air" carve.
	Boxes []Box `yaml:"boxes" json:"boxes"`
}

// DefaultScenario is a 32x32 stone floor at y=63 with a wall and a pit of
// lava, the agent standing at the origin.
func DefaultScenario() Scenario {
	return Scenario{
		Start:    gridpos.New(0, 64, 0),
		FloorMin: gridpos.New(-16, 63, -16),
		FloorMax: gridpos.New(16, 63, 16),
		Boxes: []Box{
			{From: gridpos.New(5, 64, -6), To: gridpos.New(5, 65, 6), Name: "stone"},
			{From: gridpos.New(-4, 63, 3), To: gridpos.New(-2, 63, 5), Name: "lava", Hazardous: true},
		},
	}
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return s, nil
}

// Build creates the scenario's world.
func (s Scenario) Build() *World {
	w := NewWorld()
	w.Floor(s.FloorMin.X, s.FloorMin.Z, s.FloorMax.X, s.FloorMax.Z, s.FloorMin.Y)
	for _, b := range s.Boxes {
		blk := movement.Block{Name: b.Name, Hazardous: b.Hazardous}
		// Hazardous blocks are floor the agent can stand on but should avoid.
		blk.Solid = b.Name != air.Name
		w.Fill(b.From, b.To, blk)
	}
	return w
}
