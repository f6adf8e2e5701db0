// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recovery

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
)

// DefaultMaxRetries is the per-position retry cap.
const DefaultMaxRetries = 3

// RetryBudget bounds how many times execution may retry at one position.
//
// Description:
//
//	Counters are created on first use and incremented with atomic
//	compare-and-swap, saturating at the cap, so concurrent recovery paths
//	never lose or overshoot increments.
//
// Thread Safety: Safe for concurrent use.
type RetryBudget struct {
	maxRetries int32
	counters   sync.Map // gridpos.Key -> *atomic.Int32
}

// NewRetryBudget creates a budget allowing maxRetries retries per position.
//
// Inputs:
//   - maxRetries: Per-position cap. Non-positive values use DefaultMaxRetries.
//
// Outputs:
//   - *RetryBudget: Empty budget, ready to use.
func NewRetryBudget(maxRetries int) *RetryBudget {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryBudget{maxRetries: int32(maxRetries)}
}

// MaxRetries returns the per-position cap.
func (b *RetryBudget) MaxRetries() int {
	return int(b.maxRetries)
}

func (b *RetryBudget) counter(pos gridpos.Pos) *atomic.Int32 {
	key := pos.Key()
	if c, ok := b.counters.Load(key); ok {
		return c.(*atomic.Int32)
	}
	c, _ := b.counters.LoadOrStore(key, new(atomic.Int32))
	return c.(*atomic.Int32)
}

// CanRetry reports whether pos still has budget left.
func (b *RetryBudget) CanRetry(pos gridpos.Pos) bool {
	return b.Count(pos) < int(b.maxRetries)
}

// RecordRetry charges one retry to pos.
//
// Outputs:
//   - int: The count after this call, never above MaxRetries.
func (b *RetryBudget) RecordRetry(pos gridpos.Pos) int {
	c := b.counter(pos)
	for {
		cur := c.Load()
		if cur >= b.maxRetries {
			return int(cur)
		}
		if c.CompareAndSwap(cur, cur+1) {
			retriesRecorded.Inc()
			if cur+1 == b.maxRetries {
				budgetsExhausted.Inc()
			}
			return int(cur + 1)
		}
	}
}

// Count returns the retries charged to pos.
func (b *RetryBudget) Count(pos gridpos.Pos) int {
	c, ok := b.counters.Load(pos.Key())
	if !ok {
		return 0
	}
	return int(c.(*atomic.Int32).Load())
}

// Reset restores every position to a zero count.
func (b *RetryBudget) Reset() {
	b.counters.Clear()
}

// String returns a compact summary for logs.
func (b *RetryBudget) String() string {
	positions, exhausted := 0, 0
	b.counters.Range(func(_, v any) bool {
		positions++
		if v.(*atomic.Int32).Load() >= b.maxRetries {
			exhausted++
		}
		return true
	})
	return fmt.Sprintf("RetryBudget{max=%d, positions=%d, exhausted=%d}", b.maxRetries, positions, exhausted)
}
