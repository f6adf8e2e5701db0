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

// Status is the execution state of one in-flight movement.
//
// Lifecycle:
//
//	Prepping → Waiting → Running → {Success | Unreachable | Failed | Canceled}
//
// Canceled may also be entered directly from Prepping or Waiting.
type Status int

const (
	// StatusPrepping covers clearing any obstruction at the destination.
	StatusPrepping Status = iota

	// StatusWaiting covers a pre-execution delay.
	StatusWaiting

	// StatusRunning covers active execution.
	StatusRunning

	// StatusSuccess means the destination was reached as planned.
	StatusSuccess

	// StatusUnreachable means the world changed between planning and
	// execution and the edge can no longer be taken. Never retried.
	StatusUnreachable

	// StatusFailed is a transient execution fault, eligible for retry.
	StatusFailed

	// StatusCanceled means the movement was aborted externally.
	StatusCanceled
)

// IsComplete reports whether s is terminal.
func (s Status) IsComplete() bool {
	switch s {
	case StatusSuccess, StatusUnreachable, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPrepping:
		return "prepping"
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusUnreachable:
		return "unreachable"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// FailureReason classifies why a movement did not succeed.
type FailureReason int

const (
	// ReasonUnknown is used when the movement gave no reason.
	ReasonUnknown FailureReason = iota

	// ReasonBlocked means something occupied the way.
	ReasonBlocked

	// ReasonTimedOut means the movement ran longer than its cost allowed.
	ReasonTimedOut

	// ReasonDesynced means the agent's actual state diverged from the plan.
	ReasonDesynced

	// ReasonUnreachable means the edge is no longer valid in the world.
	ReasonUnreachable

	// ReasonInterference means another entity disrupted execution.
	ReasonInterference
)

// String returns the reason name used in logs, metrics and history records.
func (r FailureReason) String() string {
	switch r {
	case ReasonBlocked:
		return "blocked"
	case ReasonTimedOut:
		return "timed_out"
	case ReasonDesynced:
		return "desynced"
	case ReasonUnreachable:
		return "unreachable"
	case ReasonInterference:
		return "interference"
	default:
		return "unknown"
	}
}

// ParseFailureReason is the inverse of FailureReason.String.
// Unrecognised names map to ReasonUnknown.
func ParseFailureReason(s string) FailureReason {
	switch s {
	case "blocked":
		return ReasonBlocked
	case "timed_out":
		return ReasonTimedOut
	case "desynced":
		return ReasonDesynced
	case "unreachable":
		return ReasonUnreachable
	case "interference":
		return ReasonInterference
	default:
		return ReasonUnknown
	}
}

// MarshalText encodes the reason by name.
func (r FailureReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a reason name.
func (r *FailureReason) UnmarshalText(b []byte) error {
	*r = ParseFailureReason(string(b))
	return nil
}

// Outcome is what a movement reports after one tick.
type Outcome struct {
	Status Status
	// Reason is only meaningful for StatusFailed and StatusUnreachable.
	Reason FailureReason
}
