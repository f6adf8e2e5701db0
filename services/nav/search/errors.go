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

import "errors"

// Sentinel errors for search operations.
var (
	// ErrInvalidHeuristic is returned when a goal heuristic yields NaN,
	// an infinity or a negative value. It aborts the search.
	ErrInvalidHeuristic = errors.New("goal heuristic is not a finite non-negative number")

	// ErrInvalidRequest is returned when a request lacks a goal or provider.
	ErrInvalidRequest = errors.New("invalid search request")

	// ErrPositionOutOfRange is returned for coordinates that cannot be keyed.
	ErrPositionOutOfRange = errors.New("position outside the packable range")

	// ErrFinderReused is returned when Find is called twice on one Finder.
	ErrFinderReused = errors.New("finder already ran a search")
)
