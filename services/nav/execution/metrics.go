// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nav_execution_ticks_total",
		Help: "Total executor ticks with an active movement",
	})

	movementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nav_execution_movements_total",
		Help: "Movements reaching a terminal status, by status",
	}, []string{"status"})

	committedPaths = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nav_execution_paths_committed_total",
		Help: "Total paths committed for execution",
	})
)
