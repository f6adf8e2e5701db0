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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsComplete(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPrepping, false},
		{StatusWaiting, false},
		{StatusRunning, false},
		{StatusSuccess, true},
		{StatusUnreachable, true},
		{StatusFailed, true},
		{StatusCanceled, true},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsComplete())
		})
	}
}

func TestTracker_HappyPath(t *testing.T) {
	tr := NewTracker()
	require.Equal(t, StatusPrepping, tr.Status())

	require.NoError(t, tr.Advance(StatusPrepping))
	require.NoError(t, tr.Advance(StatusWaiting))
	require.NoError(t, tr.Advance(StatusRunning))
	require.NoError(t, tr.Advance(StatusRunning))
	require.NoError(t, tr.Advance(StatusSuccess))

	assert.Equal(t, StatusSuccess, tr.Status())
	assert.Equal(t, 3, tr.Transitions())
}

func TestTracker_RejectsSkippingRunning(t *testing.T) {
	for _, next := range []Status{StatusSuccess, StatusFailed, StatusUnreachable, StatusRunning} {
		tr := NewTracker()
		err := tr.Advance(next)
		assert.True(t, errors.Is(err, ErrIllegalTransition), "prepping -> %s", next)
		assert.Equal(t, StatusPrepping, tr.Status())
	}

	tr := NewTracker()
	require.NoError(t, tr.Advance(StatusWaiting))
	assert.ErrorIs(t, tr.Advance(StatusSuccess), ErrIllegalTransition)
	assert.ErrorIs(t, tr.Advance(StatusPrepping), ErrIllegalTransition)
}

func TestTracker_CancelFromAnyNonTerminal(t *testing.T) {
	for _, from := range []Status{StatusPrepping, StatusWaiting, StatusRunning} {
		assert.True(t, CanTransition(from, StatusCanceled), "from %s", from)
	}
}

func TestTracker_TerminalIsAbsorbing(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Advance(StatusWaiting))
	require.NoError(t, tr.Advance(StatusRunning))
	require.NoError(t, tr.Advance(StatusFailed))

	assert.ErrorIs(t, tr.Advance(StatusRunning), ErrIllegalTransition)
	assert.ErrorIs(t, tr.Advance(StatusCanceled), ErrIllegalTransition)

	tr.Reset()
	assert.Equal(t, StatusPrepping, tr.Status())
	assert.Equal(t, 0, tr.Transitions())
}

func TestFailureReason_RoundTrip(t *testing.T) {
	for r := ReasonUnknown; r <= ReasonInterference; r++ {
		assert.Equal(t, r, ParseFailureReason(r.String()))
	}
	assert.Equal(t, ReasonUnknown, ParseFailureReason("bogus"))
}

func TestPassable(t *testing.T) {
	assert.True(t, Passable(1))
	assert.True(t, Passable(0))
	assert.False(t, Passable(CostInf))
	assert.False(t, Passable(-1))
	assert.False(t, Passable(math.NaN()))
	assert.False(t, Passable(math.Inf(1)))
}
