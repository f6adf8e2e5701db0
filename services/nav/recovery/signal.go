// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recovery

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
)

var (
	// retriesRecorded counts retries charged to any position.
	retriesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nav_recovery_retries_total",
		Help: "Total retries charged to the retry budget",
	})

	// budgetsExhausted counts positions whose budget reached the cap.
	budgetsExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nav_recovery_budget_exhausted_total",
		Help: "Total positions whose retry budget was exhausted",
	})

	// signalsEmitted counts edge abandonments by reason.
	signalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nav_recovery_signals_total",
		Help: "Total edges abandoned by failure reason",
	}, []string{"reason"})
)

// Action is what the executor decided to do about a failure.
type Action int

const (
	// ActionRetry retries the same movement.
	ActionRetry Action = iota

	// ActionAlternative substitutes another movement on the same edge.
	ActionAlternative

	// ActionReplan abandons the edge and asks for a new search.
	ActionReplan
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionAlternative:
		return "alternative"
	case ActionReplan:
		return "replan"
	default:
		return "unknown"
	}
}

// Signal reports that an edge was abandoned, so the caller can decide
// whether to request a fresh search with updated biasing.
type Signal struct {
	// Edge is the abandoned edge.
	Edge Edge `json:"edge"`

	// Kind is the movement class that last failed on it.
	Kind string `json:"kind"`

	// Reason is why the last attempt failed.
	Reason movement.FailureReason `json:"reason"`

	// Position is where the agent was when the edge was abandoned.
	Position gridpos.Pos `json:"position"`

	// Attempts is the failure count recorded for the edge.
	Attempts int `json:"attempts"`

	// PathIndex is the index of the edge in the committed path.
	PathIndex int `json:"path_index"`
}

// NewSignal builds a signal from a failure record and counts it.
func NewSignal(rec Record, position gridpos.Pos, pathIndex int) Signal {
	signalsEmitted.WithLabelValues(rec.Reason.String()).Inc()
	return Signal{
		Edge:      rec.Edge,
		Kind:      rec.Kind,
		Reason:    rec.Reason,
		Position:  position,
		Attempts:  rec.Attempts,
		PathIndex: pathIndex,
	}
}

func (s Signal) String() string {
	return fmt.Sprintf("abandon %s (%s, %s, attempts=%d) at %s",
		s.Edge, s.Kind, s.Reason, s.Attempts, s.Position)
}
