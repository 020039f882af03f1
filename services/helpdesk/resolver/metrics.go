// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// tracerName is the OTel tracer used by the resolver.
const tracerName = "helpdesk.resolver"

// Package-level Prometheus metrics, auto-registered via promauto.
var (
	// answersTotal counts answered queries.
	//
	// Labels:
	//   - method: "gibberish", "greeting", "fuzzy", "semantic", "none"
	answersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "resolver",
			Name:      "answers_total",
			Help:      "Total queries answered, by resolution method.",
		},
		[]string{"method"},
	)

	// answerDuration measures end-to-end Answer latency.
	answerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "helpdesk",
			Subsystem: "resolver",
			Name:      "answer_duration_seconds",
			Help:      "Duration of Answer calls in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
		[]string{"method"},
	)

	// embedFailuresTotal counts query embeddings that failed or timed out.
	embedFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "resolver",
			Name:      "embed_failures_total",
			Help:      "Query embedding calls that failed and fell through to no match.",
		},
	)

	// indexCacheTotal counts question-embedding cache lookups at load time.
	//
	// Labels:
	//   - result: "hit", "miss", "error"
	indexCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "resolver",
			Name:      "index_cache_total",
			Help:      "Question embedding cache lookups during Load.",
		},
		[]string{"result"},
	)

	// kbEntries reports the size of the most recently loaded knowledge base.
	kbEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "helpdesk",
			Subsystem: "resolver",
			Name:      "kb_entries",
			Help:      "Entries in the active knowledge base.",
		},
	)
)

func init() {
	for _, m := range Methods {
		answersTotal.WithLabelValues(string(m))
	}
}

// recordAnswer updates the per-method counters.
func recordAnswer(method Method, elapsed time.Duration) {
	answersTotal.WithLabelValues(string(method)).Inc()
	answerDuration.WithLabelValues(string(method)).Observe(elapsed.Seconds())
}
