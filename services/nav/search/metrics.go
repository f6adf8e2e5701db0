// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nav_search_total",
		Help: "Total searches by result type",
	}, []string{"result"})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nav_search_duration_seconds",
		Help:    "Wall time of a search",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
	})

	nodesConsidered = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nav_search_nodes_considered",
		Help:    "Nodes expanded per search",
		Buckets: prometheus.ExponentialBuckets(16, 4, 8),
	})

	openSetRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nav_search_open_set_rebuilds_total",
		Help: "Open set rebuilds caused by an epsilon change",
	})
)

func observe(r Result) {
	searchesTotal.WithLabelValues(r.Type.String()).Inc()
	searchDuration.Observe(r.Duration.Seconds())
	nodesConsidered.Observe(float64(r.NumNodesConsidered))
}
