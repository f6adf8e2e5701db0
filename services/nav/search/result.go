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
	"time"

	"github.com/AleutianAI/AleutianNav/services/nav/path"
)

// ResultType classifies how a search ended.
type ResultType int

const (
	// ResultSuccessToGoal means the path ends inside the goal.
	ResultSuccessToGoal ResultType = iota

	// ResultSuccessSegment means the search stopped early and returned the
	// best partial path toward the goal.
	ResultSuccessSegment

	// ResultFailure means no usable path was found.
	ResultFailure

	// ResultCancellation means the search was canceled. Path holds the best
	// partial path when one was usable.
	ResultCancellation

	// ResultException means the search aborted on an internal error. Err is
	// set.
	ResultException
)

// String returns the result name used in logs and metric labels.
func (t ResultType) String() string {
	switch t {
	case ResultSuccessToGoal:
		return "success_to_goal"
	case ResultSuccessSegment:
		return "success_segment"
	case ResultFailure:
		return "failure"
	case ResultCancellation:
		return "cancellation"
	case ResultException:
		return "exception"
	default:
		return "unknown"
	}
}

// HasPath reports whether t can carry a path.
func (t ResultType) HasPath() bool {
	return t == ResultSuccessToGoal || t == ResultSuccessSegment || t == ResultCancellation
}

// Result is the outcome of one search.
type Result struct {
	Type               ResultType
	Path               path.Path
	NumNodesConsidered int
	Duration           time.Duration
	Err                error
}
