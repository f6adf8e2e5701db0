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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RecentNewestFirst(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	empty, err := m.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	var ids []string
	for i := 0; i < 5; i++ {
		e := NewEntry("run", KindSearch, base.Add(time.Duration(i)*time.Second))
		ids = append(ids, e.ID)
		require.NoError(t, m.Append(ctx, e))
	}

	got, err := m.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3, "capacity bounds the history")
	assert.Equal(t, ids[4], got[0].ID)
	assert.Equal(t, ids[3], got[1].ID)
	assert.Equal(t, ids[2], got[2].ID)

	got, err = m.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[4], got[0].ID)
}

func TestNewEntry_UniqueIDs(t *testing.T) {
	a := NewEntry("run", KindRecovery, time.Now())
	b := NewEntry("run", KindRecovery, time.Now())
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, KindRecovery, a.Kind)
}
