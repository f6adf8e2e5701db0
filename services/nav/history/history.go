// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history defines the run history of a navigator: one entry per
// finished search and one per abandoned edge.
//
// Recorder is implemented in memory here and persistently by
// storage/badger.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
)

// Kind distinguishes entry types.
type Kind string

const (
	KindSearch   Kind = "search"
	KindRecovery Kind = "recovery"
)

// Search summarises one finished search.
type Search struct {
	Trigger    string       `json:"trigger"`
	Result     string       `json:"result"`
	Start      gridpos.Pos  `json:"start"`
	Dest       *gridpos.Pos `json:"dest,omitempty"`
	Length     int          `json:"length"`
	Cost       float64      `json:"cost"`
	Nodes      int          `json:"nodes"`
	DurationMs float64      `json:"duration_ms"`
	Error      string       `json:"error,omitempty"`
}

// Entry is one history record.
type Entry struct {
	ID       string           `json:"id"`
	RunID    string           `json:"run_id"`
	Kind     Kind             `json:"kind"`
	Time     time.Time        `json:"time"`
	Goal     string           `json:"goal,omitempty"`
	Search   *Search          `json:"search,omitempty"`
	Recovery *recovery.Signal `json:"recovery,omitempty"`
}

// NewEntry returns an entry with a fresh ID.
func NewEntry(runID string, kind Kind, now time.Time) Entry {
	return Entry{ID: uuid.NewString(), RunID: runID, Kind: kind, Time: now}
}

// Recorder stores history entries.
type Recorder interface {
	// Append stores e.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Memory is a bounded in-memory Recorder that drops the oldest entries.
//
// Thread Safety: Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	entries  []Entry
	next     int
	full     bool
	capacity int
}

// NewMemory returns a recorder keeping the newest capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{entries: make([]Entry, capacity), capacity: capacity}
}

// Append implements Recorder.
func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.next] = e
	m.next = (m.next + 1) % m.capacity
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent implements Recorder.
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.next
	if m.full {
		n = m.capacity
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + m.capacity) % m.capacity
		out = append(out, m.entries[idx])
	}
	return out, nil
}
