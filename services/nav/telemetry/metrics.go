// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the navigator's OTel instruments.
//
// All metrics use the "nav_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// SearchesTotal counts searches by trigger and result.
	SearchesTotal metric.Int64Counter

	// SearchDuration records search wall time in seconds.
	SearchDuration metric.Float64Histogram

	// ReplansTotal counts replans by cause.
	ReplansTotal metric.Int64Counter

	// ReplansThrottled counts replans delayed by the rate limiter.
	ReplansThrottled metric.Int64Counter

	// RecoveryActionsTotal counts executor recovery actions by action.
	RecoveryActionsTotal metric.Int64Counter

	// GoalsReachedTotal counts goals the agent arrived at.
	GoalsReachedTotal metric.Int64Counter

	// PathLength records committed path lengths in positions.
	PathLength metric.Int64Histogram
}

// NewMetrics registers all navigator instruments with meter.
//
// Inputs:
//
//	meter - The OTel meter, typically otel.Meter("nav").
//
// Outputs:
//
//	*Metrics - The registered instruments.
//	error - Non-nil if any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.SearchesTotal, err = meter.Int64Counter(
		"nav_searches_total",
		metric.WithDescription("Total searches by trigger and result"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create searches_total: %w", err)
	}

	m.SearchDuration, err = meter.Float64Histogram(
		"nav_search_wall_seconds",
		metric.WithDescription("Search wall time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search_wall_seconds: %w", err)
	}

	m.ReplansTotal, err = meter.Int64Counter(
		"nav_replans_total",
		metric.WithDescription("Total replans by cause"),
		metric.WithUnit("{replan}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create replans_total: %w", err)
	}

	m.ReplansThrottled, err = meter.Int64Counter(
		"nav_replans_throttled_total",
		metric.WithDescription("Replans delayed by the rate limiter"),
		metric.WithUnit("{replan}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create replans_throttled_total: %w", err)
	}

	m.RecoveryActionsTotal, err = meter.Int64Counter(
		"nav_recovery_actions_total",
		metric.WithDescription("Executor recovery actions by action"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recovery_actions_total: %w", err)
	}

	m.GoalsReachedTotal, err = meter.Int64Counter(
		"nav_goals_reached_total",
		metric.WithDescription("Goals the agent arrived at"),
		metric.WithUnit("{goal}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create goals_reached_total: %w", err)
	}

	m.PathLength, err = meter.Int64Histogram(
		"nav_path_length",
		metric.WithDescription("Committed path length in positions"),
		metric.WithUnit("{position}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create path_length: %w", err)
	}

	return m, nil
}

// RecordSearch records one finished search.
func (m *Metrics) RecordSearch(ctx context.Context, trigger, result string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("result", result),
	)
	m.SearchesTotal.Add(ctx, 1, attrs)
	m.SearchDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordReplan records a replan request and whether it was throttled.
func (m *Metrics) RecordReplan(ctx context.Context, cause string, throttled bool) {
	if m == nil {
		return
	}
	if throttled {
		m.ReplansThrottled.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
		return
	}
	m.ReplansTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordRecovery records one executor recovery action.
func (m *Metrics) RecordRecovery(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.RecoveryActionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordCommit records a committed path.
func (m *Metrics) RecordCommit(ctx context.Context, length int) {
	if m == nil {
		return
	}
	m.PathLength.Record(ctx, int64(length))
}

// RecordArrival records a reached goal.
func (m *Metrics) RecordArrival(ctx context.Context) {
	if m == nil {
		return
	}
	m.GoalsReachedTotal.Add(ctx, 1)
}
