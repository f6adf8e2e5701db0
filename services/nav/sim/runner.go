// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
)

// ErrTickLimit is returned when the goal is not settled within MaxTicks.
var ErrTickLimit = errors.New("tick limit reached")

// throttleBackoff is how long an unpaced run sleeps after a throttled replan.
const throttleBackoff = 10 * time.Millisecond

// Runner ticks a navigator until its goal is reached or given up on.
type Runner struct {
	// Nav is the navigator to drive.
	Nav *navigator.Navigator

	// MaxTicks bounds the run. 0 means unbounded.
	MaxTicks int

	// TickInterval paces ticks in real time. 0 runs as fast as possible,
	// blocking only while a search is in flight.
	TickInterval time.Duration

	// OnTick, when set, is called after every tick.
	OnTick func(tick int, rep navigator.TickReport)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Report summarises a run.
type Report struct {
	Ticks   int
	Elapsed time.Duration
	Status  navigator.Status
}

// Run drives the navigator.
//
// Outputs:
//
//	Report - Ticks taken and the final navigator status.
//	error - ctx's error, or ErrTickLimit. A goal given up on is not an
//	error; check Report.Status.Failed.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	begin := time.Now()

	var ticker *time.Ticker
	if r.TickInterval > 0 {
		ticker = time.NewTicker(r.TickInterval)
		defer ticker.Stop()
	}

	tick := 0
	for !r.Nav.Done() {
		if r.MaxTicks > 0 && tick >= r.MaxTicks {
			rep := Report{Ticks: tick, Elapsed: time.Since(begin), Status: r.Nav.Status()}
			logger.Warn("simulation stopped at tick limit", slog.Int("ticks", tick))
			return rep, ErrTickLimit
		}
		if err := ctx.Err(); err != nil {
			return Report{Ticks: tick, Elapsed: time.Since(begin), Status: r.Nav.Status()}, err
		}

		rep := r.Nav.Tick(ctx)
		tick++
		if r.OnTick != nil {
			r.OnTick(tick, rep)
		}

		if ticker == nil {
			Settle(ctx, r.Nav, rep)
			continue
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
		}
	}

	report := Report{Ticks: tick, Elapsed: time.Since(begin), Status: r.Nav.Status()}
	logger.Info("simulation finished",
		slog.Int("ticks", tick),
		slog.Bool("arrived", report.Status.Arrived),
		slog.Duration("elapsed", report.Elapsed))
	return report, nil
}

// Settle blocks after an unpaced tick until another tick can make progress:
// while a search runs with nothing to execute it waits for the result, and
// after a throttled replan it backs off briefly. It returns early when ctx
// ends.
func Settle(ctx context.Context, nav *navigator.Navigator, rep navigator.TickReport) {
	switch {
	case !rep.Executed && nav.Searching():
		select {
		case <-nav.SearchReady():
		case <-ctx.Done():
		}
	case rep.Throttled:
		select {
		case <-time.After(throttleBackoff):
		case <-ctx.Done():
		}
	}
}
