// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package path holds the result of a search: an ordered list of positions and
// the movements connecting them.
//
// # Invariants
//
// Every Path exposed by this package satisfies:
//   - len(Movements) == len(Positions) - 1
//   - Movements[i].Src() == Positions[i] and Movements[i].Dest() == Positions[i+1]
//   - no position appears twice
//   - Start() == Positions[0] and Dest() == Positions[len-1]
//
// Constructors run SanityCheck before returning. A violation is a defect in
// the search or in path assembly and is reported as ErrInvariantViolated.
//
// # Mutability
//
// Paths are immutable after construction except for ReplaceMovement, which
// swaps one edge for an alternative connecting the same two positions.
//
// # Thread Safety
//
// Read methods are safe for concurrent use. ReplaceMovement must not run
// concurrently with readers; the executor is the only caller.
package path

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
)

// Sentinel errors for path operations.
var (
	// ErrInvariantViolated is returned when a path fails its sanity check.
	ErrInvariantViolated = errors.New("path invariant violated")

	// ErrEmptyPath is returned when a path has no positions.
	ErrEmptyPath = errors.New("path has no positions")

	// ErrMovementMismatch is returned by ReplaceMovement when the new
	// movement does not connect the existing position boundary.
	ErrMovementMismatch = errors.New("replacement movement does not match path boundary")

	// ErrReplaceUnsupported is returned by path views that cannot be edited.
	ErrReplaceUnsupported = errors.New("path does not support movement replacement")

	// ErrIndexOutOfRange is returned for a movement index outside the path.
	ErrIndexOutOfRange = errors.New("movement index out of range")

	// ErrNotSpliceable is returned when two paths cannot be joined.
	ErrNotSpliceable = errors.New("paths cannot be spliced")
)

// Path is a route from a start position toward a goal.
type Path interface {
	// Positions returns a copy of the ordered positions.
	Positions() []gridpos.Pos

	// Movements returns a copy of the ordered movements.
	Movements() []movement.Movement

	// Position returns the i-th position.
	Position(i int) gridpos.Pos

	// Movement returns the i-th movement.
	Movement(i int) movement.Movement

	// Start is the first position.
	Start() gridpos.Pos

	// Dest is the last position.
	Dest() gridpos.Pos

	// Goal is the goal the path was computed for.
	Goal() goal.Goal

	// NumNodesConsidered is the number of search nodes expanded to build it.
	NumNodesConsidered() int

	// Length is the number of positions.
	Length() int

	// Cost is the summed movement cost.
	Cost() float64

	// CumulativeCost returns the cost of the first i movements.
	CumulativeCost(i int) float64

	// ReachesGoal reports whether Dest satisfies Goal.
	ReachesGoal() bool

	// ReplaceMovement swaps the movement at index i for m.
	ReplaceMovement(i int, m movement.Movement) error

	// SanityCheck verifies every structural invariant.
	SanityCheck() error
}

// segment carries the data and read-side behaviour shared by all paths.
type segment struct {
	positions  []gridpos.Pos
	movements  []movement.Movement
	cumulative []float64
	goal       goal.Goal
	numNodes   int
}

func (s *segment) Positions() []gridpos.Pos {
	out := make([]gridpos.Pos, len(s.positions))
	copy(out, s.positions)
	return out
}

func (s *segment) Movements() []movement.Movement {
	out := make([]movement.Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

func (s *segment) Position(i int) gridpos.Pos       { return s.positions[i] }
func (s *segment) Movement(i int) movement.Movement { return s.movements[i] }
func (s *segment) Start() gridpos.Pos               { return s.positions[0] }
func (s *segment) Dest() gridpos.Pos                { return s.positions[len(s.positions)-1] }
func (s *segment) Goal() goal.Goal                  { return s.goal }
func (s *segment) NumNodesConsidered() int          { return s.numNodes }
func (s *segment) Length() int                      { return len(s.positions) }

func (s *segment) Cost() float64 {
	return s.cumulative[len(s.cumulative)-1]
}

func (s *segment) CumulativeCost(i int) float64 {
	return s.cumulative[i]
}

func (s *segment) ReachesGoal() bool {
	if s.goal == nil {
		return false
	}
	d := s.Dest()
	return s.goal.IsInGoal(d.X, d.Y, d.Z)
}

func (s *segment) recomputeCosts() {
	if cap(s.cumulative) < len(s.positions) {
		s.cumulative = make([]float64, len(s.positions))
	}
	s.cumulative = s.cumulative[:len(s.positions)]
	s.cumulative[0] = 0
	for i, m := range s.movements {
		s.cumulative[i+1] = s.cumulative[i] + m.Cost()
	}
}

// SanityCheck verifies the structural invariants listed in the package doc.
//
// Outputs:
//   - error: ErrInvariantViolated (wrapped, with detail) on the first
//     violation found, nil otherwise.
func (s *segment) SanityCheck() error {
	if len(s.positions) == 0 {
		return fmt.Errorf("%w: %w", ErrInvariantViolated, ErrEmptyPath)
	}
	if len(s.movements) != len(s.positions)-1 {
		return fmt.Errorf("%w: %d movements for %d positions",
			ErrInvariantViolated, len(s.movements), len(s.positions))
	}
	seen := make(map[gridpos.Key]int, len(s.positions))
	for i, p := range s.positions {
		if prev, ok := seen[p.Key()]; ok {
			return fmt.Errorf("%w: position %s repeats at %d and %d",
				ErrInvariantViolated, p, prev, i)
		}
		seen[p.Key()] = i
	}
	for i, m := range s.movements {
		if m == nil {
			return fmt.Errorf("%w: movement %d is nil", ErrInvariantViolated, i)
		}
		if m.Src() != s.positions[i] {
			return fmt.Errorf("%w: movement %d src %s != position %s",
				ErrInvariantViolated, i, m.Src(), s.positions[i])
		}
		if m.Dest() != s.positions[i+1] {
			return fmt.Errorf("%w: movement %d dest %s != position %s",
				ErrInvariantViolated, i, m.Dest(), s.positions[i+1])
		}
	}
	return nil
}

func (s *segment) checkReplacement(i int, m movement.Movement) error {
	if i < 0 || i >= len(s.movements) {
		return fmt.Errorf("%w: %d (path has %d movements)", ErrIndexOutOfRange, i, len(s.movements))
	}
	if m == nil {
		return fmt.Errorf("%w: nil movement", ErrMovementMismatch)
	}
	if m.Src() != s.positions[i] || m.Dest() != s.positions[i+1] {
		return fmt.Errorf("%w: %s->%s at index %d, want %s->%s",
			ErrMovementMismatch, m.Src(), m.Dest(), i, s.positions[i], s.positions[i+1])
	}
	return nil
}

// Assembled is the path produced by a search. It supports ReplaceMovement.
type Assembled struct {
	segment
}

// Build assembles a path and verifies it.
//
// Inputs:
//   - positions: Ordered positions, first is the start. Copied.
//   - movements: Ordered movements, len(positions)-1 of them. Copied.
//   - g: The goal the path was computed for. May be nil.
//   - numNodes: Nodes considered by the search.
//
// Outputs:
//   - *Assembled: The verified path.
//   - error: ErrInvariantViolated (wrapped) if any invariant fails.
func Build(positions []gridpos.Pos, movements []movement.Movement, g goal.Goal, numNodes int) (*Assembled, error) {
	p := &Assembled{segment: segment{
		positions: append([]gridpos.Pos(nil), positions...),
		movements: append([]movement.Movement(nil), movements...),
		goal:      g,
		numNodes:  numNodes,
	}}
	if err := p.SanityCheck(); err != nil {
		return nil, err
	}
	p.recomputeCosts()
	return p, nil
}

// ReplaceMovement swaps the movement at index i for m.
//
// Inputs:
//   - i: Movement index, 0 <= i < Length()-1.
//   - m: Replacement; must have Src()==Position(i) and Dest()==Position(i+1).
//
// Outputs:
//   - error: ErrIndexOutOfRange or ErrMovementMismatch; the path is left
//     unchanged on error.
func (p *Assembled) ReplaceMovement(i int, m movement.Movement) error {
	if err := p.checkReplacement(i, m); err != nil {
		return err
	}
	p.movements[i] = m
	p.recomputeCosts()
	return nil
}

// Cutoff is a read-only prefix of another path.
type Cutoff struct {
	segment
}

// NewCutoff returns the first length positions of p.
//
// If length >= p.Length(), p is returned unchanged. length is clamped to at
// least 1.
func NewCutoff(p Path, length int) Path {
	if length >= p.Length() {
		return p
	}
	if length < 1 {
		length = 1
	}
	positions := p.Positions()[:length]
	movements := p.Movements()[:length-1]
	c := &Cutoff{segment: segment{
		positions: positions,
		movements: movements,
		goal:      p.Goal(),
		numNodes:  p.NumNodesConsidered(),
	}}
	c.recomputeCosts()
	return c
}

// ReplaceMovement always fails: cutoff views are not editable.
func (c *Cutoff) ReplaceMovement(int, movement.Movement) error {
	return ErrReplaceUnsupported
}

// Splice joins first and second into one path.
//
// Description:
//
//	second must start where first ends. If first passes through a position
//	that also lies on second, the route is shortcut there: first is kept up
//	to that position and second continues from it. A shortcut is only taken
//	when allowOverlapCutoff is true; otherwise an overlap fails the splice.
//
// Outputs:
//   - Path: The joined path, goal taken from second.
//   - error: ErrNotSpliceable if the paths do not meet, or any sanity error.
func Splice(first, second Path, allowOverlapCutoff bool) (Path, error) {
	if second == nil {
		return first, nil
	}
	if first.Dest() != second.Start() {
		return nil, fmt.Errorf("%w: first ends at %s, second starts at %s",
			ErrNotSpliceable, first.Dest(), second.Start())
	}

	secondPositions := second.Positions()
	indexInSecond := make(map[gridpos.Key]int, len(secondPositions))
	for i, p := range secondPositions {
		indexInSecond[p.Key()] = i
	}

	firstPositions := first.Positions()
	cut := -1
	// Overlap at the last element of first is required, so stop before it.
	for i := 0; i < len(firstPositions)-1; i++ {
		if _, ok := indexInSecond[firstPositions[i].Key()]; ok {
			cut = i
			break
		}
	}
	if cut != -1 {
		if !allowOverlapCutoff {
			return nil, fmt.Errorf("%w: overlap at %s", ErrNotSpliceable, firstPositions[cut])
		}
	} else {
		cut = len(firstPositions) - 1
	}
	join := indexInSecond[firstPositions[cut].Key()]

	firstMovements := first.Movements()
	secondMovements := second.Movements()

	positions := make([]gridpos.Pos, 0, cut+1+len(secondPositions)-join-1)
	positions = append(positions, firstPositions[:cut+1]...)
	positions = append(positions, secondPositions[join+1:]...)

	movements := make([]movement.Movement, 0, len(positions)-1)
	movements = append(movements, firstMovements[:cut]...)
	movements = append(movements, secondMovements[join:]...)

	return Build(positions, movements, second.Goal(), first.NumNodesConsidered()+second.NumNodesConsidered())
}
