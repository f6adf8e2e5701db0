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
	"fmt"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
)

// PathInfo summarises the committed path.
type PathInfo struct {
	Start       gridpos.Pos `json:"start"`
	Dest        gridpos.Pos `json:"dest"`
	Length      int         `json:"length"`
	Index       int         `json:"index"`
	Cost        float64     `json:"cost"`
	ReachesGoal bool        `json:"reaches_goal"`
}

// Status is a point-in-time copy of the navigator's state.
type Status struct {
	RunID            string           `json:"run_id"`
	Goal             string           `json:"goal,omitempty"`
	State            string           `json:"state"`
	Searching        bool             `json:"searching"`
	PendingReplan    string           `json:"pending_replan,omitempty"`
	Arrived          bool             `json:"arrived"`
	Failed           bool             `json:"failed"`
	Position         gridpos.Pos      `json:"position"`
	Path             *PathInfo        `json:"path,omitempty"`
	Searches         int              `json:"searches"`
	Replans          int              `json:"replans"`
	ReplansThrottled int              `json:"replans_throttled"`
	Commits          int              `json:"commits"`
	ActiveFailures   int              `json:"active_failures"`
	LastSearch       *history.Search  `json:"last_search,omitempty"`
	LastSignal       *recovery.Signal `json:"last_signal,omitempty"`
}

// Status returns a snapshot. Nothing in it aliases navigator state.
func (n *Navigator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := Status{
		RunID:            n.runID,
		State:            n.exec.State().String(),
		Searching:        n.searching,
		PendingReplan:    n.pending,
		Arrived:          n.arrived,
		Failed:           n.failed,
		Position:         n.deps.Agent.Position(),
		Searches:         n.searches,
		Replans:          n.replans,
		ReplansThrottled: n.throttled,
		Commits:          n.commits,
		ActiveFailures:   len(n.exec.Memory().Active(n.clock())),
	}
	if n.goal != nil {
		s.Goal = fmt.Sprint(n.goal)
	}
	if p := n.exec.Path(); p != nil {
		s.Path = &PathInfo{
			Start:       p.Start(),
			Dest:        p.Dest(),
			Length:      p.Length(),
			Index:       n.exec.Index(),
			Cost:        p.Cost(),
			ReachesGoal: p.ReachesGoal(),
		}
	}
	if n.lastSearch != nil {
		ls := *n.lastSearch
		if ls.Dest != nil {
			d := *ls.Dest
			ls.Dest = &d
		}
		s.LastSearch = &ls
	}
	if n.lastSignal != nil {
		cp := *n.lastSignal
		s.LastSignal = &cp
	}
	return s
}
