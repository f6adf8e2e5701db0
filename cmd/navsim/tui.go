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
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/sim"
)

// tuiEventLines is how many recent events the live view keeps on screen.
const tuiEventLines = 8

// stepMsg carries the result of one navigator tick.
type stepMsg struct {
	rep navigator.TickReport
}

// runModel is the bubbletea model behind `run --tui`.
//
// Thread Safety: Owned by the bubbletea event loop. Ticks run inside
// commands, one at a time; the next is only issued once Update has seen the
// previous result.
type runModel struct {
	ctx      context.Context
	nav      *navigator.Navigator
	interval time.Duration
	maxTicks int

	spinner spinner.Model
	begin   time.Time
	tick    int
	events  []string
	status  navigator.Status

	limited  bool
	quitting bool
}

func newRunModel(ctx context.Context, nav *navigator.Navigator, interval time.Duration, maxTicks int) runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorTealPrimary)
	return runModel{
		ctx:      ctx,
		nav:      nav,
		interval: interval,
		maxTicks: maxTicks,
		spinner:  s,
		begin:    time.Now(),
		status:   nav.Status(),
	}
}

// Init implements tea.Model.
func (m runModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.step(0))
}

// step ticks the navigator after delay. An unpaced step settles before
// returning so the next one can make progress.
func (m runModel) step(delay time.Duration) tea.Cmd {
	nav, ctx := m.nav, m.ctx
	do := func() tea.Msg {
		rep := nav.Tick(ctx)
		if delay == 0 {
			sim.Settle(ctx, nav, rep)
		}
		return stepMsg{rep: rep}
	}
	if delay == 0 {
		return do
	}
	return tea.Tick(delay, func(time.Time) tea.Msg { return do() })
}

// Update implements tea.Model.
func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case stepMsg:
		m.tick++
		m.status = m.nav.Status()
		if text := describe(msg.rep); text != "" {
			m.events = append(m.events, fmt.Sprintf("[%5d] %s", m.tick, text))
			if len(m.events) > tuiEventLines {
				m.events = m.events[len(m.events)-tuiEventLines:]
			}
		}
		if m.nav.Done() || m.ctx.Err() != nil {
			return m, tea.Quit
		}
		if m.maxTicks > 0 && m.tick >= m.maxTicks {
			m.limited = true
			return m, tea.Quit
		}
		return m, m.step(m.interval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m runModel) View() string {
	st := m.status
	var b strings.Builder

	switch {
	case st.Arrived:
		b.WriteString(styles.Success.Render(iconSuccess + " arrived at " + st.Goal))
	case st.Failed:
		b.WriteString(styles.Error.Render(iconError + " gave up on " + st.Goal))
	case m.limited:
		b.WriteString(styles.Warning.Render(iconWarning + " tick limit reached"))
	default:
		b.WriteString(m.spinner.View() + " " + styles.Title.Render("navigating to "+st.Goal))
	}
	b.WriteString("\n\n")

	progress := "none"
	if st.Path != nil {
		progress = fmt.Sprintf("%d/%d", st.Path.Index, st.Path.Length)
	}
	rows := [][2]string{
		{"position", st.Position.String()},
		{"state", st.State},
		{"path", progress},
		{"tick", fmt.Sprint(m.tick)},
		{"searches", fmt.Sprint(st.Searches)},
		{"replans", fmt.Sprint(st.Replans)},
		{"failures", fmt.Sprint(st.ActiveFailures)},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s\n", styles.Label.Render(fmt.Sprintf("%-9s", r[0])), r[1])
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString(styles.Muted.Render(e) + "\n")
		}
	}
	if !m.quitting && !m.nav.Done() {
		b.WriteString("\n" + styles.Muted.Render("q to stop") + "\n")
	}
	return b.String()
}

// report converts the final model into the summary printed after the
// program exits.
func (m runModel) report() sim.Report {
	return sim.Report{Ticks: m.tick, Elapsed: time.Since(m.begin), Status: m.status}
}

// runTUI drives the navigator inside a bubbletea program.
func runTUI(ctx context.Context, p *printer, e *env, interval time.Duration, maxTicks int) (sim.Report, error) {
	prog := tea.NewProgram(newRunModel(ctx, e.nav, interval, maxTicks),
		tea.WithContext(ctx),
		tea.WithOutput(p.out))
	final, err := prog.Run()
	if err != nil {
		return sim.Report{}, fmt.Errorf("live view: %w", err)
	}
	m := final.(runModel)
	switch {
	case m.limited:
		return m.report(), sim.ErrTickLimit
	case m.quitting && !e.nav.Done():
		return m.report(), context.Canceled
	}
	return m.report(), nil
}
