// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package movement

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a movement reports a status that
// cannot follow the current one.
var ErrIllegalTransition = errors.New("illegal movement status transition")

// Tracker enforces the status lifecycle of one in-flight movement.
//
// Thread Safety: Not safe for concurrent use. Owned by the executor.
type Tracker struct {
	status      Status
	transitions int
}

// NewTracker returns a tracker in StatusPrepping.
func NewTracker() *Tracker {
	return &Tracker{status: StatusPrepping}
}

// Status returns the current status.
func (t *Tracker) Status() Status {
	return t.status
}

// Transitions returns how many status changes have been accepted since the
// last Reset. Staying in the same status does not count.
func (t *Tracker) Transitions() int {
	return t.transitions
}

// CanTransition reports whether next may follow from.
//
// Allowed:
//   - Prepping → Prepping | Waiting | Canceled
//   - Waiting  → Waiting | Running | Canceled
//   - Running  → Running | Success | Unreachable | Failed | Canceled
//
// Terminal states are absorbing.
func CanTransition(from, next Status) bool {
	if from.IsComplete() {
		return false
	}
	if next == StatusCanceled || next == from {
		return true
	}
	switch from {
	case StatusPrepping:
		return next == StatusWaiting
	case StatusWaiting:
		return next == StatusRunning
	case StatusRunning:
		return next.IsComplete()
	default:
		return false
	}
}

// Advance moves the tracker to next.
//
// Inputs:
//   - next: The status reported by the movement this tick.
//
// Outputs:
//   - error: ErrIllegalTransition (wrapped) if next cannot follow the
//     current status. The tracker is left unchanged in that case.
func (t *Tracker) Advance(next Status) error {
	if !CanTransition(t.status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.status, next)
	}
	if next != t.status {
		t.transitions++
	}
	t.status = next
	return nil
}

// Reset returns the tracker to StatusPrepping for a retry.
func (t *Tracker) Reset() {
	t.status = StatusPrepping
	t.transitions = 0
}
