// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package navigator

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianNav/services/nav/bias"
	"github.com/AleutianAI/AleutianNav/services/nav/execution"
	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
	"github.com/AleutianAI/AleutianNav/services/nav/search"
	"github.com/AleutianAI/AleutianNav/services/nav/telemetry"
)

var (
	// ErrNilGoal is returned by SetGoal for a nil goal.
	ErrNilGoal = errors.New("goal must not be nil")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("navigator closed")

	// ErrMissingDependency is returned by New when Agent or Provider is nil.
	ErrMissingDependency = errors.New("navigator requires an agent and a provider")
)

// Config tunes the navigator.
type Config struct {
	// Search configures every Finder the navigator starts.
	Search search.Options

	// Execution configures the executor.
	Execution execution.Config

	// BacktrackCoefficient scales the cost of entering cells of the
	// previous path when replanning. Values below 1 are raised to the
	// default; 1 disables the penalty.
	BacktrackCoefficient float64

	// FailurePenalty is raised to the attempt count of a remembered failed
	// edge to scale its cost.
	FailurePenalty float64

	// MaxPathLength cuts committed paths to this many positions. 0 keeps
	// them whole.
	MaxPathLength int

	// PlanAheadMovements starts the next segment's search once this few
	// movements of a partial path remain. 0 waits for the segment to end.
	PlanAheadMovements int

	// ReplanInterval and ReplanBurst rate-limit replans.
	ReplanInterval time.Duration
	ReplanBurst    int

	// MaxSearchFailures gives up on a goal after this many consecutive
	// searches without a path.
	MaxSearchFailures int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Search:               search.DefaultOptions(),
		Execution:            execution.DefaultConfig(),
		BacktrackCoefficient: 1.5,
		FailurePenalty:       4,
		PlanAheadMovements:   5,
		ReplanInterval:       250 * time.Millisecond,
		ReplanBurst:          3,
		MaxSearchFailures:    5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BacktrackCoefficient < 1 {
		c.BacktrackCoefficient = d.BacktrackCoefficient
	}
	if c.FailurePenalty < 1 {
		c.FailurePenalty = d.FailurePenalty
	}
	if c.MaxPathLength < 0 {
		c.MaxPathLength = 0
	}
	if c.PlanAheadMovements < 0 {
		c.PlanAheadMovements = 0
	}
	if c.ReplanInterval <= 0 {
		c.ReplanInterval = d.ReplanInterval
	}
	if c.ReplanBurst <= 0 {
		c.ReplanBurst = d.ReplanBurst
	}
	if c.MaxSearchFailures <= 0 {
		c.MaxSearchFailures = d.MaxSearchFailures
	}
	return c
}

// Deps are the navigator's collaborators.
type Deps struct {
	// Agent is the entity being navigated. Required.
	Agent movement.Agent

	// Provider generates the movement graph. Required.
	Provider movement.Provider

	// Hazards returns the current hazard set. Optional.
	Hazards func() []bias.Hazard

	// History receives search and recovery entries. Optional.
	History history.Recorder

	// Metrics records OTel metrics. Optional.
	Metrics *telemetry.Metrics

	// Tracer creates spans. Nil uses the global tracer provider.
	Tracer trace.Tracer

	// Logger is the base logger. Nil uses slog.Default().
	Logger *slog.Logger

	// Clock returns the current time. Nil uses time.Now.
	Clock func() time.Time
}
