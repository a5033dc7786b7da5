package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cleanup subsystem metrics
var (
	// FilesDeletedTotal tracks total duplicate files deleted
	FilesDeletedTotal prometheus.Counter

	// BytesReclaimedTotal tracks total bytes reclaimed across all cleanups
	BytesReclaimedTotal prometheus.Counter

	// DeleteErrorsTotal tracks deletions that failed
	DeleteErrorsTotal prometheus.Counter

	// CleanupLastRunTimestamp records Unix timestamp of last cleanup
	CleanupLastRunTimestamp prometheus.Gauge

	// RunsTotal counts scan-and-cleanup cycles by what started them
	RunsTotal *prometheus.CounterVec
)

// initCleanupMetrics initializes all cleanup subsystem metrics
func initCleanupMetrics() {
	FilesDeletedTotal = NewCounter(
		"dupesweep_files_deleted_total",
		"Total number of duplicate files deleted.",
	)

	BytesReclaimedTotal = NewBytesCounter(
		"dupesweep_bytes_reclaimed_total",
		"Total bytes reclaimed by deleting duplicates.",
	)

	DeleteErrorsTotal = NewCounter(
		"dupesweep_delete_errors_total",
		"Total number of delete attempts that failed.",
	)

	CleanupLastRunTimestamp = NewSizeGauge(
		"dupesweep_cleanup_last_run_timestamp",
		"Timestamp of the last cleanup run (Unix epoch seconds).",
	)

	RunsTotal = NewCounterVec(
		"dupesweep_runs_total",
		"Total number of scan-and-cleanup cycles by trigger (startup, timer, signal).",
		[]string{"trigger"},
	)
}

// registerCleanupMetrics registers all cleanup metrics with Prometheus
func registerCleanupMetrics() {
	prometheus.MustRegister(FilesDeletedTotal)
	prometheus.MustRegister(BytesReclaimedTotal)
	prometheus.MustRegister(DeleteErrorsTotal)
	prometheus.MustRegister(CleanupLastRunTimestamp)
	prometheus.MustRegister(RunsTotal)
}

// RecordCleanupRun counts a cycle against its trigger and updates the
// last run timestamp to current time
func RecordCleanupRun(trigger string) {
	RunsTotal.WithLabelValues(trigger).Inc()
	CleanupLastRunTimestamp.Set(float64(time.Now().Unix()))
}
