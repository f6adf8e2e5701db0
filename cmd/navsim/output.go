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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/sim"
)

// Aleutian palette.
var (
	colorTealBright  = lipgloss.Color("#2CD7C7")
	colorTealPrimary = lipgloss.Color("#20B9B4")
	colorTealDeep    = lipgloss.Color("#16858E")
	colorSlate       = lipgloss.Color("#2C4A54")
	colorWarning     = lipgloss.Color("#F4D03F")
	colorError       = lipgloss.Color("#E74C3C")
)

var styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorTealBright),
	Label:   lipgloss.NewStyle().Foreground(colorTealPrimary),
	Muted:   lipgloss.NewStyle().Foreground(colorSlate),
	Success: lipgloss.NewStyle().Foreground(colorTealBright),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Foreground(colorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorTealDeep).
		Padding(0, 1),
}

const (
	iconSuccess = "✓"
	iconWarning = "⚠"
	iconError   = "✗"
	iconArrow   = "→"
)

// printer writes run progress. Styling is dropped when out is not a
// terminal so piped output stays grep-friendly.
type printer struct {
	out   io.Writer
	plain bool
}

func newPrinter(out io.Writer, forcePlain bool) *printer {
	plain := forcePlain
	if f, ok := out.(*os.File); ok && !forcePlain {
		plain = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	} else if !ok {
		plain = true
	}
	return &printer{out: out, plain: plain}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p *printer) title(text string) {
	fmt.Fprintln(p.out, p.render(styles.Title, text))
}

func (p *printer) success(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(styles.Success, iconSuccess), text)
}

func (p *printer) warning(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(styles.Warning, iconWarning), text)
}

func (p *printer) failure(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(styles.Error, iconError), text)
}

// event prints one notable tick.
func (p *printer) event(tick int, rep navigator.TickReport) {
	text := describe(rep)
	if text == "" {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.render(styles.Muted, fmt.Sprintf("[%5d]", tick)), text)
}

// describe renders what happened during one tick. Quiet ticks are empty.
func describe(rep navigator.TickReport) string {
	var parts []string
	if rep.Committed {
		parts = append(parts, "committed path")
	}
	if rep.Extended {
		parts = append(parts, "extended path")
	}
	if rep.Execution.Recovered {
		parts = append(parts, fmt.Sprintf("recovered (%s)", rep.Execution.Action))
	}
	if rep.Execution.Signal != nil {
		sig := rep.Execution.Signal
		parts = append(parts, fmt.Sprintf("abandoned %s %s %s (%s)", sig.Edge.Src, iconArrow, sig.Edge.Dest, sig.Reason))
	}
	if rep.Replanned {
		parts = append(parts, "replanning")
	}
	if rep.Arrived {
		parts = append(parts, "arrived")
	}
	return strings.Join(parts, ", ")
}

// summary prints the final report in a box.
func (p *printer) summary(rep sim.Report) {
	st := rep.Status
	rows := [][2]string{
		{"run", st.RunID},
		{"goal", st.Goal},
		{"position", st.Position.String()},
		{"ticks", fmt.Sprint(rep.Ticks)},
		{"elapsed", rep.Elapsed.Round(1e6).String()},
		{"searches", fmt.Sprint(st.Searches)},
		{"commits", fmt.Sprint(st.Commits)},
		{"replans", fmt.Sprintf("%d (%d throttled)", st.Replans, st.ReplansThrottled)},
		{"active failures", fmt.Sprint(st.ActiveFailures)},
	}
	if st.LastSignal != nil {
		rows = append(rows, [2]string{"last signal", fmt.Sprintf("%s at %s", st.LastSignal.Reason, st.LastSignal.Position)})
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-16s %s", p.render(styles.Label, r[0]), r[1])
	}
	if p.plain {
		fmt.Fprintln(p.out, b.String())
	} else {
		fmt.Fprintln(p.out, styles.Box.Render(b.String()))
	}

	switch {
	case st.Arrived:
		p.success("goal reached")
	case st.Failed:
		p.failure("goal given up")
	default:
		p.warning("run stopped before the goal settled")
	}
}
