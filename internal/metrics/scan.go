package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Scan subsystem metrics
var (
	// ScanDurationSeconds tracks how long duplicate scan cycles take
	ScanDurationSeconds prometheus.Histogram

	// FilesHashedTotal tracks total files fingerprinted
	FilesHashedTotal prometheus.Counter

	// BytesHashedTotal tracks total bytes read while fingerprinting
	BytesHashedTotal prometheus.Counter

	// HashErrorsTotal tracks files that could not be read for hashing
	HashErrorsTotal prometheus.Counter

	// DuplicateGroupsCurrent records the group count from the most recent scan
	DuplicateGroupsCurrent prometheus.Gauge

	// DuplicateFilesCurrent records the redundant file count from the most recent scan
	DuplicateFilesCurrent prometheus.Gauge

	// DuplicateSizeBytes tracks the content size of duplicate groups as they are found
	DuplicateSizeBytes prometheus.Histogram

	// HashWorkersActive tracks the hash worker pool size while a scan runs
	HashWorkersActive prometheus.Gauge
)

// initScanMetrics initializes all scan subsystem metrics
func initScanMetrics() {
	ScanDurationSeconds = NewDurationHistogram(
		"dupesweep_scan_duration_seconds",
		"Duration of duplicate scan cycles in seconds.",
	)

	FilesHashedTotal = NewCounter(
		"dupesweep_files_hashed_total",
		"Total number of files fingerprinted with SHA-256.",
	)

	BytesHashedTotal = NewBytesCounter(
		"dupesweep_bytes_hashed_total",
		"Total bytes read while fingerprinting files.",
	)

	HashErrorsTotal = NewCounter(
		"dupesweep_hash_errors_total",
		"Total number of files skipped because they could not be read.",
	)

	DuplicateGroupsCurrent = NewGauge(
		"dupesweep_duplicate_groups",
		"Number of duplicate groups found by the most recent scan.",
	)

	DuplicateFilesCurrent = NewGauge(
		"dupesweep_duplicate_files",
		"Number of redundant copies found by the most recent scan.",
	)

	DuplicateSizeBytes = NewBytesHistogram(
		"dupesweep_duplicate_size_bytes",
		"Size in bytes of duplicated content, one observation per group found.",
	)

	HashWorkersActive = NewGauge(
		"dupesweep_hash_workers_active",
		"Number of hash workers currently processing files.",
	)
}

// registerScanMetrics registers all scan metrics with Prometheus
func registerScanMetrics() {
	prometheus.MustRegister(ScanDurationSeconds)
	prometheus.MustRegister(FilesHashedTotal)
	prometheus.MustRegister(BytesHashedTotal)
	prometheus.MustRegister(HashErrorsTotal)
	prometheus.MustRegister(DuplicateGroupsCurrent)
	prometheus.MustRegister(DuplicateFilesCurrent)
	prometheus.MustRegister(DuplicateSizeBytes)
	prometheus.MustRegister(HashWorkersActive)
}
