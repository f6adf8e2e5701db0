// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gridpos

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPack_RoundTrip(t *testing.T) {
	cases := []Pos{
		{0, 0, 0},
		{1, 2, 3},
		{-1, -2, -3},
		{MinXZ, MinY, MinXZ},
		{MaxXZ, MaxY, MaxXZ},
		{30000000, 64, -30000000},
	}
	for _, p := range cases {
		assert.Equal(t, p, p.Key().Unpack(), "pos=%v", p)
	}
}

func TestPack_Layout(t *testing.T) {
	assert.Equal(t, Key(1), Pack(0, 1, 0), "y occupies the low 12 bits")
	assert.Equal(t, Key(1)<<12, Pack(0, 0, 1), "z sits above y")
	assert.Equal(t, Key(1)<<38, Pack(1, 0, 0), "x sits above z")
	assert.Equal(t, Key(0xfff), Pack(0, -1, 0), "negative y stays inside its field")
	assert.Equal(t, Key(0x3ffffff)<<12, Pack(0, 0, -1))
	assert.Equal(t, Key(0x3ffffff)<<38, Pack(-1, 0, 0))
}

func TestPack_RandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		p := Pos{
			X: rng.Intn(MaxXZ-MinXZ) + MinXZ,
			Y: rng.Intn(MaxY-MinY) + MinY,
			Z: rng.Intn(MaxXZ-MinXZ) + MinXZ,
		}
		require.Equal(t, p, p.Key().Unpack())
	}
}

func TestPack_DistinctNeighbours(t *testing.T) {
	origin := New(0, 0, 0)
	seen := map[Key]Pos{origin.Key(): origin}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				p := origin.Offset(dx, dy, dz)
				if prev, ok := seen[p.Key()]; ok && prev != p {
					t.Fatalf("key collision between %v and %v", prev, p)
				}
				seen[p.Key()] = p
			}
		}
	}
	assert.Len(t, seen, 27)
}

func TestPos_Distances(t *testing.T) {
	a := New(0, 0, 0)
	b := New(3, -4, 12)
	assert.Equal(t, 169, a.DistanceSq(b))
	assert.Equal(t, 19, a.ManhattanDistance(b))
	assert.Equal(t, "(3,-4,12)", b.String())
}

func TestPos_InRange(t *testing.T) {
	assert.True(t, New(0, 0, 0).InRange())
	assert.False(t, New(MaxXZ+1, 0, 0).InRange())
	assert.False(t, New(0, MinY-1, 0).InRange())
}

func TestParse(t *testing.T) {
	p, err := Parse("(10, 64,-3)")
	require.NoError(t, err)
	assert.Equal(t, New(10, 64, -3), p)

	_, err = Parse("1,2")
	assert.Error(t, err)

	_, err = Parse("a,b,c")
	assert.Error(t, err)
}
