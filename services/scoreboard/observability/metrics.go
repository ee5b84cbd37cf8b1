// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics for the scoreboard service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the
// tiered write path:
//   - Successful write counters (by store and serving tier)
//   - Rate-limit denials
//   - Per-tier operation failures
//   - Fallback depth (how far down the chain an operation travelled)
//
// It also carries the plain process-wide write counter that backs the
// JSON metrics endpoint, so external reporting doesn't need to scrape
// the Prometheus registry.
//
// # Thread Safety
//
// All metric operations are thread-safe.
package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "gauntlet"

// Subsystem for scoreboard metrics
const scoreboardSubsystem = "scoreboard"

// Metrics holds all Prometheus metrics for the scoreboard service,
// plus the plain write counter exposed on the JSON metrics endpoint.
type Metrics struct {
	// WritesTotal counts successful writes by store and serving tier.
	// Labels: store (scores, progress), tier (postgres, badger, memory)
	WritesTotal *prometheus.CounterVec

	// RateLimitedTotal counts denied submissions.
	RateLimitedTotal prometheus.Counter

	// TierErrorsTotal counts single-tier operation failures.
	// Labels: tier, op (put_score, top_scores, get_progress, put_progress)
	TierErrorsTotal *prometheus.CounterVec

	// FallbackDepth measures how many tiers an operation tried before
	// one served it. Depth 1 means the primary tier served it.
	// Labels: op
	FallbackDepth *prometheus.HistogramVec

	// writes is the plain monotonic counter behind WritesCount.
	writes atomic.Int64
}

// NewMetrics creates and registers all scoreboard metrics.
//
// # Inputs
//
//   - reg: Registry to register with. Tests pass a fresh
//     prometheus.NewRegistry(); main passes the default registerer.
//
// # Outputs
//
//   - *Metrics: The initialized metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: scoreboardSubsystem,
				Name:      "writes_total",
				Help:      "Successful writes by store and serving tier",
			},
			[]string{"store", "tier"},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: scoreboardSubsystem,
				Name:      "rate_limited_total",
				Help:      "Submissions denied by the rate limiter",
			},
		),

		TierErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: scoreboardSubsystem,
				Name:      "tier_errors_total",
				Help:      "Single-tier operation failures by tier and operation",
			},
			[]string{"tier", "op"},
		),

		FallbackDepth: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: scoreboardSubsystem,
				Name:      "fallback_depth",
				Help:      "Number of tiers tried before one served the operation",
				Buckets:   []float64{1, 2, 3},
			},
			[]string{"op"},
		),
	}
}

// RecordWrite counts one successful write. Implements
// storage.WriteRecorder.
func (m *Metrics) RecordWrite(store, tier string) {
	m.WritesTotal.WithLabelValues(store, tier).Inc()
	m.writes.Add(1)
}

// RecordRateLimited counts one denied submission.
func (m *Metrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}

// RecordTierError counts one tier failure. Implements
// storage.ChainMetrics.
func (m *Metrics) RecordTierError(tier, op string) {
	m.TierErrorsTotal.WithLabelValues(tier, op).Inc()
}

// RecordFallbackDepth records chain depth for a served operation.
// Implements storage.ChainMetrics.
func (m *Metrics) RecordFallbackDepth(op string, depth int) {
	m.FallbackDepth.WithLabelValues(op).Observe(float64(depth))
}

// WritesCount returns the process-wide count of successful writes
// since startup. Not persisted across restarts; an operational gauge,
// not an audit log.
func (m *Metrics) WritesCount() int64 {
	return m.writes.Load()
}
