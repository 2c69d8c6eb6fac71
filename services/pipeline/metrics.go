// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	patchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "pipeline",
			Name:      "patch_requests_total",
			Help:      "Patch requests by outcome (applied or the error kind).",
		},
		[]string{"outcome"},
	)

	stageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Pipeline failures by stage and error kind.",
		},
		[]string{"stage", "kind"},
	)

	patchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pilot",
			Subsystem: "pipeline",
			Name:      "patch_duration_seconds",
			Help:      "End-to-end patch request latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
		},
	)
)
