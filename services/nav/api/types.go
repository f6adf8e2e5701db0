// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
)

// Goal kinds accepted by POST /goal.
const (
	GoalBlock = "block"
	GoalNear  = "near"
	GoalXZ    = "xz"
)

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	RunID   string `json:"run_id"`
}

// GoalRequest is the body of POST /goal.
type GoalRequest struct {
	// Kind selects the goal shape.
	Kind string `json:"kind" validate:"required,oneof=block near xz"`

	X *int `json:"x" validate:"required"`

	// Y is ignored for xz goals.
	Y *int `json:"y" validate:"required_unless=Kind xz"`

	Z *int `json:"z" validate:"required"`

	// Radius applies to near goals.
	Radius int `json:"radius" validate:"required_if=Kind near,gte=0,lte=256"`
}

// Goal converts the request. Call only after validation.
func (r GoalRequest) Goal() goal.Goal {
	y := 0
	if r.Y != nil {
		y = *r.Y
	}
	pos := gridpos.New(*r.X, y, *r.Z)
	switch r.Kind {
	case GoalNear:
		return goal.Near{Pos: pos, Radius: r.Radius}
	case GoalXZ:
		return goal.XZ{X: *r.X, Z: *r.Z}
	default:
		return goal.NewBlock(pos)
	}
}

// GoalResponse acknowledges a new goal.
type GoalResponse struct {
	RunID string `json:"run_id"`
	Goal  string `json:"goal"`
}

// StatusResponse wraps the navigator snapshot.
type StatusResponse struct {
	navigator.Status
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}
