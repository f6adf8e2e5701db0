// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/sim"
)

func newTestNavigator(t *testing.T, target gridpos.Pos) *navigator.Navigator {
	t.Helper()
	s := sim.DefaultScenario()
	nav, err := navigator.New(navigator.DefaultConfig(), navigator.Deps{
		Agent:    sim.NewAgent(s.Start),
		Provider: sim.NewGraph(s.Build()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { nav.Close() })
	require.NoError(t, nav.SetGoal(context.Background(), goal.NewBlock(target)))
	return nav
}

// drive runs the model's commands inline until it quits.
func drive(t *testing.T, m runModel, limit int) runModel {
	t.Helper()
	cmd := m.step(0)
	for i := 0; i < limit; i++ {
		msg := cmd()
		if _, ok := msg.(tea.QuitMsg); ok {
			return m
		}
		next, c := m.Update(msg)
		m, cmd = next.(runModel), c
		require.NotNil(t, cmd)
	}
	t.Fatalf("model did not quit within %d steps", limit)
	return m
}

func TestRunModel_Arrives(t *testing.T) {
	nav := newTestNavigator(t, gridpos.New(10, 64, 0))
	m := drive(t, newRunModel(context.Background(), nav, 0, 0), 20000)

	assert.True(t, m.status.Arrived)
	assert.False(t, m.limited)
	assert.Positive(t, m.tick)
	require.NotEmpty(t, m.events)
	assert.LessOrEqual(t, len(m.events), tuiEventLines)
	assert.Contains(t, m.events[len(m.events)-1], "arrived")
	assert.Contains(t, m.View(), "arrived at Block(10,64,0)")

	rep := m.report()
	assert.Equal(t, m.tick, rep.Ticks)
	assert.True(t, rep.Status.Arrived)
}

func TestRunModel_TickLimit(t *testing.T) {
	nav := newTestNavigator(t, gridpos.New(10, 64, 0))
	m := drive(t, newRunModel(context.Background(), nav, 0, 1), 10)

	assert.True(t, m.limited)
	assert.Equal(t, 1, m.tick)
	assert.Contains(t, m.View(), "tick limit reached")
}

func TestRunModel_Quit(t *testing.T) {
	nav := newTestNavigator(t, gridpos.New(10, 64, 0))
	m := newRunModel(context.Background(), nav, 0, 0)
	assert.Contains(t, m.View(), "navigating to Block(10,64,0)")
	assert.Contains(t, m.View(), "q to stop")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, next.(runModel).quitting)
}
