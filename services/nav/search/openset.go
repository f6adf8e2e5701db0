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

import "container/list"

// OpenSet is the priority queue of nodes awaiting expansion, ordered by
// CombinedCost. Ties are broken arbitrarily.
type OpenSet interface {
	// Insert queues a node that is not currently queued.
	Insert(id NodeID)

	// IsEmpty reports whether no node is queued.
	IsEmpty() bool

	// Len returns the number of queued nodes.
	Len() int

	// RemoveLowest dequeues the node with the lowest CombinedCost.
	// Panics if the set is empty.
	RemoveLowest() NodeID

	// Update restores ordering after a queued node's CombinedCost decreased.
	Update(id NodeID)

	// RebuildWithEpsilon sets CombinedCost = Cost + EstimatedCostToGoal*eps
	// for every queued node and restores ordering.
	RebuildWithEpsilon(eps float64)
}

// OpenSetFactory creates an empty open set over a node table.
type OpenSetFactory func(table *NodeTable) OpenSet

const emptyOpenSetPanic = "search: RemoveLowest on empty open set"

// LinkedListOpenSet is an unordered list with linear-time extraction.
//
// It exists as a reference implementation for cross-validating the heap.
type LinkedListOpenSet struct {
	table *NodeTable
	items *list.List
}

// NewLinkedListOpenSet creates an empty list-backed open set.
func NewLinkedListOpenSet(table *NodeTable) *LinkedListOpenSet {
	return &LinkedListOpenSet{
		table: table,
		items: list.New(),
	}
}

// Insert implements OpenSet in O(1).
func (s *LinkedListOpenSet) Insert(id NodeID) {
	s.items.PushFront(id)
	s.table.Node(id).heapPosition = 1
}

// IsEmpty implements OpenSet.
func (s *LinkedListOpenSet) IsEmpty() bool { return s.items.Len() == 0 }

// Len implements OpenSet.
func (s *LinkedListOpenSet) Len() int { return s.items.Len() }

// RemoveLowest implements OpenSet in O(n).
func (s *LinkedListOpenSet) RemoveLowest() NodeID {
	if s.items.Len() == 0 {
		panic(emptyOpenSetPanic)
	}
	lowest := s.items.Front()
	lowestCost := s.table.Node(lowest.Value.(NodeID)).CombinedCost
	for e := lowest.Next(); e != nil; e = e.Next() {
		if c := s.table.Node(e.Value.(NodeID)).CombinedCost; c < lowestCost {
			lowest, lowestCost = e, c
		}
	}
	id := s.items.Remove(lowest).(NodeID)
	s.table.Node(id).heapPosition = 0
	return id
}

// Update implements OpenSet. Extraction scans every node, so nothing to do.
func (s *LinkedListOpenSet) Update(NodeID) {}

// RebuildWithEpsilon implements OpenSet.
func (s *LinkedListOpenSet) RebuildWithEpsilon(eps float64) {
	for e := s.items.Front(); e != nil; e = e.Next() {
		n := s.table.Node(e.Value.(NodeID))
		n.CombinedCost = n.Cost + n.EstimatedCostToGoal*eps
	}
}
