// Package metrics exposes Prometheus instrumentation for the watcher and
// serves it over HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollAttempts counts poll iterations, labelled by how the attempt
	// ended: "match", "empty", or "error".
	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compwatch_poll_attempts_total",
			Help: "Total number of poll attempts by result",
		},
		[]string{"result"},
	)

	// Matches counts watches that located their completion event.
	Matches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compwatch_matches_total",
		Help: "Total number of completion events matched",
	})

	// Timeouts counts watches that exhausted their attempt budget.
	Timeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compwatch_timeouts_total",
		Help: "Total number of watches that timed out",
	})

	// ContainersScanned counts containers whose log lines were decoded.
	ContainersScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compwatch_containers_scanned_total",
		Help: "Total number of containers scanned",
	})

	// ContainerFetchErrors counts per-container content fetches that failed
	// and were skipped within an otherwise successful attempt.
	ContainerFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compwatch_container_fetch_errors_total",
		Help: "Total number of container content fetches that failed",
	})

	// ScanDuration observes the wall time of one poll attempt.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "compwatch_scan_duration_seconds",
		Help:    "Duration of one poll attempt in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ActiveWatches tracks watches currently polling.
	ActiveWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "compwatch_active_watches",
		Help: "Number of watches currently in flight",
	})
)
