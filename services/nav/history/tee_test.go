// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ err error }

func (s failingSink) Append(context.Context, Entry) error { return s.err }

func TestTee_AppendsEverywhereReadsPrimary(t *testing.T) {
	ctx := context.Background()
	primary, mirror := NewMemory(8), NewMemory(8)
	rec := Tee(primary, mirror)

	e := NewEntry("run", KindSearch, time.Now())
	require.NoError(t, rec.Append(ctx, e))

	got, err := mirror.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)

	got, err = rec.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	assert.Same(t, primary, Tee(primary), "no sinks returns the primary")
}

func TestTee_JoinsSinkErrors(t *testing.T) {
	boom := errors.New("boom")
	primary := NewMemory(8)
	rec := Tee(primary, failingSink{boom})

	err := rec.Append(context.Background(), NewEntry("run", KindRecovery, time.Now()))
	assert.ErrorIs(t, err, boom)

	got, _ := primary.Recent(context.Background(), 0)
	assert.Len(t, got, 1, "primary still written")
}

func TestFeed_DeliversAndDrops(t *testing.T) {
	ctx := context.Background()
	f := NewFeed()
	ch, cancel := f.Subscribe(1)
	assert.Equal(t, 1, f.Subscribers())

	first := NewEntry("run", KindSearch, time.Now())
	require.NoError(t, f.Append(ctx, first))
	require.NoError(t, f.Append(ctx, NewEntry("run", KindSearch, time.Now())))

	got := <-ch
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 1, f.Dropped(), "buffer of one drops the second")

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, f.Subscribers())
	require.NoError(t, f.Append(ctx, first), "no subscribers is fine")
}
