// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package path

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
)

type stubMove struct {
	src, dest gridpos.Pos
	cost      float64
	kind      string
}

func (m *stubMove) Src() gridpos.Pos  { return m.src }
func (m *stubMove) Dest() gridpos.Pos { return m.dest }
func (m *stubMove) Cost() float64     { return m.cost }
func (m *stubMove) Kind() string      { return m.kind }
func (m *stubMove) Tick(context.Context, movement.TickContext) movement.Outcome {
	return movement.Outcome{Status: movement.StatusSuccess}
}
func (m *stubMove) Reset()  {}
func (m *stubMove) Cancel() {}

// straightLine builds positions (0..n-1, 0, 0) and unit movements between them.
func straightLine(n int) ([]gridpos.Pos, []movement.Movement) {
	positions := make([]gridpos.Pos, n)
	for i := range positions {
		positions[i] = gridpos.New(i, 0, 0)
	}
	movements := make([]movement.Movement, 0, n-1)
	for i := 0; i+1 < n; i++ {
		movements = append(movements, &stubMove{src: positions[i], dest: positions[i+1], cost: 1, kind: "traverse"})
	}
	return positions, movements
}

func TestBuild_Valid(t *testing.T) {
	positions, movements := straightLine(11)
	g := goal.NewBlock(gridpos.New(10, 0, 0))

	p, err := Build(positions, movements, g, 42)
	require.NoError(t, err)

	assert.Equal(t, 11, p.Length())
	assert.Len(t, p.Movements(), 10)
	assert.Equal(t, gridpos.New(0, 0, 0), p.Start())
	assert.Equal(t, gridpos.New(10, 0, 0), p.Dest())
	assert.Equal(t, 42, p.NumNodesConsidered())
	assert.True(t, p.ReachesGoal())
	assert.InDelta(t, 10.0, p.Cost(), 1e-9)
	for i := 1; i < p.Length(); i++ {
		assert.Greater(t, p.CumulativeCost(i), p.CumulativeCost(i-1))
	}
	assert.NoError(t, p.SanityCheck())
}

func TestBuild_SinglePosition(t *testing.T) {
	p, err := Build([]gridpos.Pos{gridpos.New(1, 2, 3)}, nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, p.Start(), p.Dest())
	assert.Equal(t, 0.0, p.Cost())
	assert.False(t, p.ReachesGoal())
}

func TestBuild_RejectsRepeatedPosition(t *testing.T) {
	a, b := gridpos.New(0, 0, 0), gridpos.New(1, 0, 0)
	positions := []gridpos.Pos{a, b, a}
	movements := []movement.Movement{
		&stubMove{src: a, dest: b, cost: 1},
		&stubMove{src: b, dest: a, cost: 1},
	}

	_, err := Build(positions, movements, nil, 0)
	assert.ErrorIs(t, err, ErrInvariantViolated)
	assert.Contains(t, err.Error(), "repeats")
}

func TestBuild_RejectsBrokenInvariants(t *testing.T) {
	positions, movements := straightLine(4)

	t.Run("empty", func(t *testing.T) {
		_, err := Build(nil, nil, nil, 0)
		assert.ErrorIs(t, err, ErrInvariantViolated)
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("movement count", func(t *testing.T) {
		_, err := Build(positions, movements[:2], nil, 0)
		assert.ErrorIs(t, err, ErrInvariantViolated)
	})

	t.Run("src mismatch", func(t *testing.T) {
		bad := append([]movement.Movement(nil), movements...)
		bad[1] = &stubMove{src: gridpos.New(5, 5, 5), dest: positions[2], cost: 1}
		_, err := Build(positions, bad, nil, 0)
		assert.ErrorIs(t, err, ErrInvariantViolated)
	})

	t.Run("dest mismatch", func(t *testing.T) {
		bad := append([]movement.Movement(nil), movements...)
		bad[2] = &stubMove{src: positions[2], dest: gridpos.New(9, 9, 9), cost: 1}
		_, err := Build(positions, bad, nil, 0)
		assert.ErrorIs(t, err, ErrInvariantViolated)
	})

	t.Run("nil movement", func(t *testing.T) {
		bad := append([]movement.Movement(nil), movements...)
		bad[0] = nil
		_, err := Build(positions, bad, nil, 0)
		assert.ErrorIs(t, err, ErrInvariantViolated)
	})
}

func TestBuild_CopiesInput(t *testing.T) {
	positions, movements := straightLine(3)
	p, err := Build(positions, movements, nil, 0)
	require.NoError(t, err)

	positions[0] = gridpos.New(99, 99, 99)
	assert.Equal(t, gridpos.New(0, 0, 0), p.Start())

	out := p.Positions()
	out[1] = gridpos.New(99, 99, 99)
	assert.Equal(t, gridpos.New(1, 0, 0), p.Position(1))
}

func TestReplaceMovement(t *testing.T) {
	positions, movements := straightLine(5)
	p, err := Build(positions, movements, nil, 0)
	require.NoError(t, err)

	alt := &stubMove{src: positions[2], dest: positions[3], cost: 4, kind: "parkour"}
	require.NoError(t, p.ReplaceMovement(2, alt))

	assert.Same(t, alt, p.Movement(2))
	assert.NoError(t, p.SanityCheck())
	assert.InDelta(t, 7.0, p.Cost(), 1e-9)
	assert.Equal(t, positions, p.Positions())
}

func TestReplaceMovement_Mismatch(t *testing.T) {
	positions, movements := straightLine(5)
	p, err := Build(positions, movements, nil, 0)
	require.NoError(t, err)

	wrongDest := &stubMove{src: positions[1], dest: gridpos.New(1, 1, 0), cost: 1}
	assert.ErrorIs(t, p.ReplaceMovement(1, wrongDest), ErrMovementMismatch)

	wrongSrc := &stubMove{src: positions[0], dest: positions[2], cost: 1}
	assert.ErrorIs(t, p.ReplaceMovement(1, wrongSrc), ErrMovementMismatch)

	assert.ErrorIs(t, p.ReplaceMovement(4, movements[0]), ErrIndexOutOfRange)
	assert.ErrorIs(t, p.ReplaceMovement(-1, movements[0]), ErrIndexOutOfRange)

	assert.Same(t, movements[1], p.Movement(1))
	assert.NoError(t, p.SanityCheck())
}

func TestCutoff(t *testing.T) {
	positions, movements := straightLine(10)
	p, err := Build(positions, movements, goal.NewBlock(positions[9]), 7)
	require.NoError(t, err)

	c := NewCutoff(p, 4)
	assert.Equal(t, 4, c.Length())
	assert.Equal(t, positions[3], c.Dest())
	assert.False(t, c.ReachesGoal())
	assert.Equal(t, 7, c.NumNodesConsidered())
	assert.NoError(t, c.SanityCheck())
	assert.ErrorIs(t, c.ReplaceMovement(0, movements[0]), ErrReplaceUnsupported)

	assert.Same(t, Path(p), NewCutoff(p, 10))
	assert.Equal(t, 1, NewCutoff(p, 0).Length())
}

func TestSplice_Contiguous(t *testing.T) {
	positions, movements := straightLine(10)
	first, err := Build(positions[:5], movements[:4], nil, 3)
	require.NoError(t, err)
	second, err := Build(positions[4:], movements[4:], goal.NewBlock(positions[9]), 4)
	require.NoError(t, err)

	joined, err := Splice(first, second, false)
	require.NoError(t, err)
	assert.Equal(t, positions, joined.Positions())
	assert.Equal(t, 7, joined.NumNodesConsidered())
	assert.True(t, joined.ReachesGoal())
}

func TestSplice_OverlapCutoff(t *testing.T) {
	// first goes 0 -> 1 -> 2 -> (2,0,1); second goes back through 1.
	p0, p1, p2, p3 := gridpos.New(0, 0, 0), gridpos.New(1, 0, 0), gridpos.New(2, 0, 0), gridpos.New(2, 0, 1)
	first, err := Build(
		[]gridpos.Pos{p0, p1, p2, p3},
		[]movement.Movement{
			&stubMove{src: p0, dest: p1, cost: 1},
			&stubMove{src: p1, dest: p2, cost: 1},
			&stubMove{src: p2, dest: p3, cost: 1},
		}, nil, 0)
	require.NoError(t, err)

	q := gridpos.New(1, 0, 1)
	second, err := Build(
		[]gridpos.Pos{p3, q, p1, gridpos.New(1, 0, -1)},
		[]movement.Movement{
			&stubMove{src: p3, dest: q, cost: 1},
			&stubMove{src: q, dest: p1, cost: 1},
			&stubMove{src: p1, dest: gridpos.New(1, 0, -1), cost: 1},
		}, nil, 0)
	require.NoError(t, err)

	_, err = Splice(first, second, false)
	assert.ErrorIs(t, err, ErrNotSpliceable)

	joined, err := Splice(first, second, true)
	require.NoError(t, err)
	assert.Equal(t, []gridpos.Pos{p0, p1, gridpos.New(1, 0, -1)}, joined.Positions())
	assert.NoError(t, joined.SanityCheck())
}

func TestSplice_Disjoint(t *testing.T) {
	positions, movements := straightLine(6)
	first, err := Build(positions[:3], movements[:2], nil, 0)
	require.NoError(t, err)
	second, err := Build(positions[3:], movements[3:], nil, 0)
	require.NoError(t, err)

	_, err = Splice(first, second, true)
	assert.ErrorIs(t, err, ErrNotSpliceable)

	same, err := Splice(first, nil, false)
	require.NoError(t, err)
	assert.Same(t, Path(first), same)
}
