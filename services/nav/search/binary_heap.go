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

// initialHeapCapacity is the starting slot count of the heap array.
const initialHeapCapacity = 1024

// BinaryHeapOpenSet is a 1-indexed array min-heap over CombinedCost.
//
// Description:
//
//	Each queued node records its slot in heapPosition, which makes Update
//	O(log n) without a lookup. Update only sifts up: during search a
//	queued node's cost can only decrease.
//
// Thread Safety: Not safe for concurrent use.
type BinaryHeapOpenSet struct {
	table *NodeTable
	array []NodeID
	size  int
}

// NewBinaryHeapOpenSet creates an empty heap over table.
func NewBinaryHeapOpenSet(table *NodeTable) *BinaryHeapOpenSet {
	return &BinaryHeapOpenSet{
		table: table,
		array: make([]NodeID, initialHeapCapacity),
	}
}

func (h *BinaryHeapOpenSet) cost(slot int) float64 {
	return h.table.Node(h.array[slot]).CombinedCost
}

func (h *BinaryHeapOpenSet) place(slot int, id NodeID) {
	h.array[slot] = id
	h.table.Node(id).heapPosition = slot
}

// Insert implements OpenSet.
func (h *BinaryHeapOpenSet) Insert(id NodeID) {
	if h.size >= len(h.array)-1 {
		grown := make([]NodeID, len(h.array)*2)
		copy(grown, h.array)
		h.array = grown
	}
	h.size++
	h.place(h.size, id)
	h.siftUp(h.size)
}

// IsEmpty implements OpenSet.
func (h *BinaryHeapOpenSet) IsEmpty() bool { return h.size == 0 }

// Len implements OpenSet.
func (h *BinaryHeapOpenSet) Len() int { return h.size }

// Update implements OpenSet.
func (h *BinaryHeapOpenSet) Update(id NodeID) {
	slot := h.table.Node(id).heapPosition
	if slot == 0 {
		return
	}
	h.siftUp(slot)
}

// RemoveLowest implements OpenSet.
func (h *BinaryHeapOpenSet) RemoveLowest() NodeID {
	if h.size == 0 {
		panic(emptyOpenSetPanic)
	}
	result := h.array[1]
	last := h.array[h.size]
	h.array[h.size] = 0
	h.size--
	if h.size > 0 {
		h.place(1, last)
		h.siftDown(1)
	}
	h.table.Node(result).heapPosition = 0
	return result
}

// RebuildWithEpsilon implements OpenSet with a bottom-up heapify.
func (h *BinaryHeapOpenSet) RebuildWithEpsilon(eps float64) {
	for slot := 1; slot <= h.size; slot++ {
		n := h.table.Node(h.array[slot])
		n.CombinedCost = n.Cost + n.EstimatedCostToGoal*eps
	}
	for slot := h.size / 2; slot >= 1; slot-- {
		h.siftDown(slot)
	}
}

func (h *BinaryHeapOpenSet) siftUp(slot int) {
	id := h.array[slot]
	c := h.table.Node(id).CombinedCost
	for slot > 1 {
		parent := slot >> 1
		if h.cost(parent) <= c {
			break
		}
		h.place(slot, h.array[parent])
		slot = parent
	}
	h.place(slot, id)
}

func (h *BinaryHeapOpenSet) siftDown(slot int) {
	id := h.array[slot]
	c := h.table.Node(id).CombinedCost
	for {
		child := slot << 1
		if child > h.size {
			break
		}
		if right := child + 1; right <= h.size && h.cost(right) < h.cost(child) {
			child = right
		}
		if c <= h.cost(child) {
			break
		}
		h.place(slot, h.array[child])
		slot = child
	}
	h.place(slot, id)
}
