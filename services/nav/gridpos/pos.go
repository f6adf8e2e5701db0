// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gridpos provides integer voxel coordinates and their packed keys.
//
// A Key packs (x, y, z) into a single uint64 so positions can be used as
// cheap map keys by the node table, the cost bias map and the retry budget.
//
// Layout (most significant first):
//
//	| x: 26 bits | z: 26 bits | y: 12 bits |
//
// X and Z cover [-2^25, 2^25), Y covers [-2^11, 2^11).
package gridpos

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	xzBits = 26
	yBits  = 12

	xzMask = (1 << xzBits) - 1
	yMask  = (1 << yBits) - 1

	zShift = yBits
	xShift = yBits + xzBits

	// MinXZ and MaxXZ bound the horizontal coordinates that pack losslessly.
	MinXZ = -(1 << (xzBits - 1))
	MaxXZ = (1 << (xzBits - 1)) - 1

	// MinY and MaxY bound the vertical coordinate that packs losslessly.
	MinY = -(1 << (yBits - 1))
	MaxY = (1 << (yBits - 1)) - 1
)

// Key is the packed form of a Pos.
type Key uint64

// Pos is an integer (x, y, z) coordinate of one voxel cell.
type Pos struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

// New returns the position (x, y, z).
func New(x, y, z int) Pos {
	return Pos{X: x, Y: y, Z: z}
}

// Pack encodes (x, y, z) as a Key.
func Pack(x, y, z int) Key {
	return Key(uint64(x)&xzMask)<<xShift |
		Key(uint64(z)&xzMask)<<zShift |
		Key(uint64(y)&yMask)
}

// Key returns the packed key of p.
func (p Pos) Key() Key {
	return Pack(p.X, p.Y, p.Z)
}

// Unpack decodes the key back into a position, sign-extending each field.
func (k Key) Unpack() Pos {
	x := signExtend(uint64(k)>>xShift&xzMask, xzBits)
	z := signExtend(uint64(k)>>zShift&xzMask, xzBits)
	y := signExtend(uint64(k)&yMask, yBits)
	return Pos{X: x, Y: y, Z: z}
}

func signExtend(v uint64, bits uint) int {
	shift := 64 - bits
	return int(int64(v<<shift) >> shift)
}

// InRange reports whether p packs without loss.
func (p Pos) InRange() bool {
	return p.X >= MinXZ && p.X <= MaxXZ &&
		p.Z >= MinXZ && p.Z <= MaxXZ &&
		p.Y >= MinY && p.Y <= MaxY
}

// Offset returns p translated by (dx, dy, dz).
func (p Pos) Offset(dx, dy, dz int) Pos {
	return Pos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// Up returns the position above p.
func (p Pos) Up() Pos { return p.Offset(0, 1, 0) }

// Down returns the position below p.
func (p Pos) Down() Pos { return p.Offset(0, -1, 0) }

// DistanceSq returns the squared euclidean distance between p and o.
func (p Pos) DistanceSq(o Pos) int {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

// ManhattanDistance returns |dx| + |dy| + |dz|.
func (p Pos) ManhattanDistance(o Pos) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y) + abs(p.Z-o.Z)
}

// String renders the position as "(x,y,z)".
func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// Parse reads a position written as "x,y,z" (parentheses and spaces optional).
//
// Inputs:
//   - s: The textual position.
//
// Outputs:
//   - Pos: The parsed position.
//   - error: Non-nil if s does not contain three integers.
func Parse(s string) (Pos, error) {
	trimmed := strings.Trim(strings.TrimSpace(s), "()")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 3 {
		return Pos{}, fmt.Errorf("parse position %q: want x,y,z", s)
	}
	var vals [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Pos{}, fmt.Errorf("parse position %q: %w", s, err)
		}
		vals[i] = v
	}
	return Pos{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
