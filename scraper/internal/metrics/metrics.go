package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eproc_sync_runs_total",
			Help: "Total number of sync runs by terminal status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eproc_sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eproc_sync_last_run_timestamp",
			Help: "Unix time at which the last sync run finished",
		},
	)

	Pending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eproc_sync_pending",
			Help: "1 when the last run left capped work behind",
		},
	)

	// Case and document metrics
	CasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eproc_sync_cases_total",
			Help: "Total number of case operations by action",
		},
		[]string{"action"},
	)

	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eproc_sync_documents_total",
			Help: "Total number of documents by result",
		},
		[]string{"result"},
	)

	// Run loop metrics
	RunLoopState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eproc_runloop_state",
			Help: "1 for the run loop's current state, 0 otherwise",
		},
		[]string{"state"},
	)
)

// Case actions.
const (
	CaseAdded   = "added"
	CaseRemoved = "removed"
	CaseUpdated = "updated"
	CaseError   = "error"
)

// Document results.
const (
	DocumentUploaded = "uploaded"
	DocumentSkipped  = "skipped"
	DocumentError    = "error"
)

// SetRunLoopState marks state as current among states.
func SetRunLoopState(current string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		RunLoopState.WithLabelValues(s).Set(v)
	}
}
