// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry served on /metrics.
	Registry = prometheus.NewRegistry()

	// SolvesTotal counts optimization calls by outcome.
	SolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "depot_solves_total", Help: "Optimization calls by status."},
		[]string{"status"},
	)
	// SolveDuration records wall time per optimization call in seconds.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depot_solve_duration_seconds",
			Help:    "Optimization call duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)
	// SearchNodes records branch-and-bound nodes explored per call.
	SearchNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "depot_search_nodes",
			Help:    "Branch-and-bound nodes per optimization call.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
	// SolvesInFlight is the number of optimization calls running.
	SolvesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "depot_solves_in_flight", Help: "Optimization calls currently running."},
	)

	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry. Safe to call more
// than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(SolvesTotal)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(SearchNodes)
		Registry.MustRegister(SolvesInFlight)
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// ObserveSolve records one finished optimization call.
func ObserveSolve(status string, seconds float64, nodes int) {
	SolvesTotal.WithLabelValues(status).Inc()
	SolveDuration.WithLabelValues(status).Observe(seconds)

	if nodes > 0 {
		SearchNodes.Observe(float64(nodes))
	}
}
