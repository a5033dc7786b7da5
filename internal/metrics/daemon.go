package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"dupesweep/internal/disk"
)

// Daemon subsystem metrics
var (
	// ErrorsTotal tracks total errors encountered by the daemon
	ErrorsTotal prometheus.Counter

	// FreeSpacePercent tracks current free space percentage per scan root
	FreeSpacePercent *prometheus.GaugeVec

	// RootFreeBytes tracks free space on the filesystem containing a scan root
	RootFreeBytes *prometheus.GaugeVec

	// RootTotalBytes tracks total capacity of the filesystem containing a scan root
	RootTotalBytes *prometheus.GaugeVec

	// RootFilesScanned tracks regular files seen under a scan root by the last scan
	RootFilesScanned *prometheus.GaugeVec
)

// initDaemonMetrics initializes all daemon subsystem metrics
func initDaemonMetrics() {
	ErrorsTotal = NewCounter(
		"dupesweep_daemon_errors_total",
		"Total number of errors encountered by the daemon.",
	)

	FreeSpacePercent = NewSizeGaugeVec(
		"dupesweep_daemon_free_space_percent",
		"Current free space percentage for scan roots.",
		[]string{"root"},
	)

	RootFreeBytes = NewSizeGaugeVec(
		"dupesweep_root_free_bytes",
		"Free space available on the filesystem containing this scan root.",
		[]string{"root"},
	)

	RootTotalBytes = NewSizeGaugeVec(
		"dupesweep_root_total_bytes",
		"Total capacity of the filesystem containing this scan root.",
		[]string{"root"},
	)

	RootFilesScanned = NewSizeGaugeVec(
		"dupesweep_root_files_scanned",
		"Regular files seen under this scan root by the most recent scan.",
		[]string{"root"},
	)
}

// registerDaemonMetrics registers all daemon metrics with Prometheus
func registerDaemonMetrics() {
	prometheus.MustRegister(ErrorsTotal)
	prometheus.MustRegister(FreeSpacePercent)
	prometheus.MustRegister(RootFreeBytes)
	prometheus.MustRegister(RootTotalBytes)
	prometheus.MustRegister(RootFilesScanned)
}

// UpdateFreeSpacePercent updates the free space percentage for a scan root
func UpdateFreeSpacePercent(root string, percent float64) {
	FreeSpacePercent.WithLabelValues(root).Set(percent)
}

// UpdateRootDiskMetrics updates filesystem-level metrics for a scan root.
// Pass the usage from disk.Stat to populate them atomically.
func UpdateRootDiskMetrics(root string, u disk.Usage) {
	FreeSpacePercent.WithLabelValues(root).Set(u.FreePercent())
	RootFreeBytes.WithLabelValues(root).Set(float64(u.FreeBytes))
	RootTotalBytes.WithLabelValues(root).Set(float64(u.TotalBytes))
}

// SetRootFilesScanned records how many regular files the last scan saw under a root
func SetRootFilesScanned(root string, count int) {
	RootFilesScanned.WithLabelValues(root).Set(float64(count))
}
