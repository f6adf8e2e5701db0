// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recovery keeps the execution-time failure state: which edges have
// recently failed and how many retries each position has used.
//
// Both structures are scoped to one committed path. The executor resets them
// when a new path is committed or the current path completes, so state never
// leaks between unrelated executions.
package recovery

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
)

// DefaultMemoryDuration is how long a failure is remembered.
const DefaultMemoryDuration = 30 * time.Second

// Edge is a directed pair of grid positions.
type Edge struct {
	Src  gridpos.Pos `json:"src"`
	Dest gridpos.Pos `json:"dest"`
}

// EdgeOf returns the edge a movement traverses.
func EdgeOf(m movement.Movement) Edge {
	return Edge{Src: m.Src(), Dest: m.Dest()}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s->%s", e.Src, e.Dest)
}

type edgeKey struct {
	src, dest gridpos.Key
}

func (e Edge) key() edgeKey {
	return edgeKey{src: e.Src.Key(), dest: e.Dest.Key()}
}

// Record is the remembered failure state of one edge.
type Record struct {
	Edge Edge `json:"edge"`

	// Kind is the movement class of the most recent failure.
	Kind string `json:"kind"`

	// FailedKinds lists every movement class that failed on this edge.
	FailedKinds []string `json:"failed_kinds"`

	// Timestamp is when the edge last failed.
	Timestamp time.Time `json:"timestamp"`

	// Reason is the reason of the most recent failure.
	Reason movement.FailureReason `json:"reason"`

	// Attempts counts consecutive failures of this edge.
	Attempts int `json:"attempts"`
}

// IsExpired reports whether more than duration has passed since the record
// was last refreshed. A record exactly duration old is still live.
func (r Record) IsExpired(now time.Time, duration time.Duration) bool {
	return now.Sub(r.Timestamp) > duration
}

// HasFailedKind reports whether kind has failed on this edge.
func (r Record) HasFailedKind(kind string) bool {
	for _, k := range r.FailedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// FailureMemory remembers recent per-edge execution failures.
//
// Description:
//
//	Repeated failures of the same edge refresh one record instead of adding
//	new ones. Expired records are ignored by every read; Purge removes them.
//
// Thread Safety: Safe for concurrent use.
type FailureMemory struct {
	duration time.Duration

	mu      sync.RWMutex
	records map[edgeKey]*Record
}

// NewFailureMemory creates a memory that forgets failures after duration.
//
// Inputs:
//   - duration: Memory duration. Non-positive values use DefaultMemoryDuration.
//
// Outputs:
//   - *FailureMemory: Empty memory, ready to use.
func NewFailureMemory(duration time.Duration) *FailureMemory {
	if duration <= 0 {
		duration = DefaultMemoryDuration
	}
	return &FailureMemory{
		duration: duration,
		records:  make(map[edgeKey]*Record),
	}
}

// Duration returns the configured memory duration.
func (m *FailureMemory) Duration() time.Duration {
	return m.duration
}

// RecordFailure notes a failure of edge by a movement of the given kind.
//
// Description:
//
//	If a live record exists for the edge its attempt counter is incremented
//	and its timestamp, kind and reason refreshed. An expired record is
//	replaced, so attempts restart at 1.
//
// Outputs:
//   - Record: A copy of the updated record.
func (m *FailureMemory) RecordFailure(edge Edge, kind string, reason movement.FailureReason, now time.Time) Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := edge.key()
	rec, ok := m.records[k]
	if !ok || rec.IsExpired(now, m.duration) {
		rec = &Record{Edge: edge}
		m.records[k] = rec
	}
	rec.Attempts++
	rec.Kind = kind
	rec.Reason = reason
	rec.Timestamp = now
	if !rec.HasFailedKind(kind) {
		rec.FailedKinds = append(rec.FailedKinds, kind)
	}
	return rec.clone()
}

// Get returns the live record for edge.
//
// Outputs:
//   - Record: Copy of the record.
//   - bool: False if there is no record or it has expired.
func (m *FailureMemory) Get(edge Edge, now time.Time) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[edge.key()]
	if !ok || rec.IsExpired(now, m.duration) {
		return Record{}, false
	}
	return rec.clone(), true
}

// Active returns copies of all live records ordered by timestamp, newest first.
func (m *FailureMemory) Active(now time.Time) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if rec.IsExpired(now, m.duration) {
			continue
		}
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Purge drops expired records and returns how many were removed.
func (m *FailureMemory) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, rec := range m.records {
		if rec.IsExpired(now, m.duration) {
			delete(m.records, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored records, live or expired.
func (m *FailureMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Reset forgets everything.
func (m *FailureMemory) Reset() {
	m.mu.Lock()
	m.records = make(map[edgeKey]*Record)
	m.mu.Unlock()
}

func (r *Record) clone() Record {
	c := *r
	c.FailedKinds = append([]string(nil), r.FailedKinds...)
	return c
}
