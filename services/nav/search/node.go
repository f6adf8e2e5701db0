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
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
)

// NodeID is a dense index into a NodeTable.
type NodeID int32

// NoNode marks the absence of a predecessor.
const NoNode NodeID = -1

// Node is the per-coordinate bookkeeping of one search.
//
// Identity is the coordinate alone: two nodes are equal iff their Pos is.
type Node struct {
	Pos gridpos.Pos

	// EstimatedCostToGoal is the goal heuristic, fixed at creation.
	EstimatedCostToGoal float64

	// Cost is the best known cost from the start. +Inf until relaxed.
	Cost float64

	// CombinedCost is Cost + EstimatedCostToGoal*epsilon, the open-set key.
	CombinedCost float64

	// Previous is the predecessor on the best known route.
	Previous NodeID

	// PreviousMovement is the movement from Previous to this node.
	PreviousMovement movement.Movement

	// heapPosition is the open-set slot, 0 when not queued.
	heapPosition int
}

// Equal reports whether n and o denote the same coordinate.
func (n *Node) Equal(o *Node) bool {
	return n.Pos == o.Pos
}

// IsOpen reports whether n is currently queued.
func (n *Node) IsOpen() bool {
	return n.heapPosition != 0
}

// NodeTable is the node arena of one search.
//
// Nodes are addressed by NodeID. Pointers returned by Node are only valid
// until the next GetOrCreate, which may grow the backing slice.
//
// Thread Safety: Not safe for concurrent use. Owned by one search.
type NodeTable struct {
	index map[gridpos.Key]NodeID
	nodes []Node
}

// NewNodeTable creates a table sized for capacity nodes.
func NewNodeTable(capacity int) *NodeTable {
	if capacity < 1 {
		capacity = 1
	}
	return &NodeTable{
		index: make(map[gridpos.Key]NodeID, capacity),
		nodes: make([]Node, 0, capacity),
	}
}

// Len returns the number of nodes created.
func (t *NodeTable) Len() int {
	return len(t.nodes)
}

// Node returns the node with the given id.
func (t *NodeTable) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Lookup returns the id for pos if a node exists.
func (t *NodeTable) Lookup(pos gridpos.Pos) (NodeID, bool) {
	id, ok := t.index[pos.Key()]
	return id, ok
}

// GetOrCreate returns the node for pos, creating it on first sight.
//
// Description:
//
//	A new node gets its heuristic from g and an infinite cost. The
//	heuristic is validated once, here.
//
// Outputs:
//   - NodeID: The node's id.
//   - error: ErrInvalidHeuristic or ErrPositionOutOfRange (wrapped).
func (t *NodeTable) GetOrCreate(pos gridpos.Pos, g goal.Goal) (NodeID, error) {
	key := pos.Key()
	if id, ok := t.index[key]; ok {
		return id, nil
	}
	if !pos.InRange() {
		return NoNode, fmt.Errorf("%w: %s", ErrPositionOutOfRange, pos)
	}
	h := g.Heuristic(pos.X, pos.Y, pos.Z)
	if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
		return NoNode, fmt.Errorf("%w: %v at %s", ErrInvalidHeuristic, h, pos)
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, Node{
		Pos:                 pos,
		EstimatedCostToGoal: h,
		Cost:                math.Inf(1),
		CombinedCost:        math.Inf(1),
		Previous:            NoNode,
	})
	t.index[key] = id
	return id, nil
}

// Trace walks predecessor links back from id to the start.
//
// Outputs:
//   - []gridpos.Pos: Positions from the start to id.
//   - []movement.Movement: The movements between them.
func (t *NodeTable) Trace(id NodeID) ([]gridpos.Pos, []movement.Movement) {
	var positions []gridpos.Pos
	var movements []movement.Movement
	for cur := id; cur != NoNode; cur = t.nodes[cur].Previous {
		n := &t.nodes[cur]
		positions = append(positions, n.Pos)
		if n.Previous != NoNode {
			movements = append(movements, n.PreviousMovement)
		}
		if len(positions) > len(t.nodes) {
			// A predecessor cycle; let the path sanity check report it.
			break
		}
	}
	reverse(positions)
	reverse(movements)
	return positions, movements
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
