package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dupesweep/internal/disk"
)

// TestMetricsInit verifies that Init() is idempotent and registers metrics
func TestMetricsInit(t *testing.T) {
	// Call Init multiple times - should be idempotent via sync.Once
	Init()
	Init()
	Init()

	// Verify metrics are non-nil (successfully created)
	if ScanDurationSeconds == nil {
		t.Error("ScanDurationSeconds should be initialized")
	}
	if FilesHashedTotal == nil {
		t.Error("FilesHashedTotal should be initialized")
	}
	if BytesHashedTotal == nil {
		t.Error("BytesHashedTotal should be initialized")
	}
	if HashErrorsTotal == nil {
		t.Error("HashErrorsTotal should be initialized")
	}
	if DuplicateGroupsCurrent == nil {
		t.Error("DuplicateGroupsCurrent should be initialized")
	}
	if DuplicateFilesCurrent == nil {
		t.Error("DuplicateFilesCurrent should be initialized")
	}
	if HashWorkersActive == nil {
		t.Error("HashWorkersActive should be initialized")
	}
	if FilesDeletedTotal == nil {
		t.Error("FilesDeletedTotal should be initialized")
	}
	if BytesReclaimedTotal == nil {
		t.Error("BytesReclaimedTotal should be initialized")
	}
	if DeleteErrorsTotal == nil {
		t.Error("DeleteErrorsTotal should be initialized")
	}
	if CleanupLastRunTimestamp == nil {
		t.Error("CleanupLastRunTimestamp should be initialized")
	}
	if RunsTotal == nil {
		t.Error("RunsTotal should be initialized")
	}
	if ErrorsTotal == nil {
		t.Error("ErrorsTotal should be initialized")
	}
	if FreeSpacePercent == nil {
		t.Error("FreeSpacePercent should be initialized")
	}

	// Labeled metrics only show up in a gather once a label value exists
	RunsTotal.WithLabelValues("startup").Inc()
	UpdateFreeSpacePercent("/srv/media", 85.5)

	// Test metrics are registered by gathering from default registry
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	// Check for expected metric names
	expectedMetrics := []string{
		"dupesweep_scan_duration_seconds",
		"dupesweep_files_hashed_total",
		"dupesweep_bytes_hashed_total",
		"dupesweep_hash_errors_total",
		"dupesweep_duplicate_groups",
		"dupesweep_duplicate_files",
		"dupesweep_duplicate_size_bytes",
		"dupesweep_hash_workers_active",
		"dupesweep_files_deleted_total",
		"dupesweep_bytes_reclaimed_total",
		"dupesweep_delete_errors_total",
		"dupesweep_cleanup_last_run_timestamp",
		"dupesweep_runs_total",
		"dupesweep_daemon_errors_total",
		"dupesweep_daemon_free_space_percent",
		"dupesweep_daemon_healthy",
		"dupesweep_daemon_start_timestamp_seconds",
		"dupesweep_health_check_timeouts_total",
	}

	foundMetrics := make(map[string]bool)
	for _, mf := range mfs {
		foundMetrics[*mf.Name] = true
	}

	for _, expected := range expectedMetrics {
		if !foundMetrics[expected] {
			t.Errorf("Expected metric %s not found in registry", expected)
		}
	}
}

// TestHelperFunctions verifies that helper functions create valid metrics
func TestHelperFunctions(t *testing.T) {
	t.Run("NewDurationHistogram", func(t *testing.T) {
		h := NewDurationHistogram("test_duration", "Test duration metric")
		if h == nil {
			t.Error("NewDurationHistogram returned nil")
		}
	})

	t.Run("NewBytesHistogram", func(t *testing.T) {
		h := NewBytesHistogram("test_size", "Test size metric")
		if h == nil {
			t.Error("NewBytesHistogram returned nil")
		}
	})

	t.Run("NewBytesCounter", func(t *testing.T) {
		c := NewBytesCounter("test_bytes", "Test bytes metric")
		if c == nil {
			t.Error("NewBytesCounter returned nil")
		}
	})

	t.Run("NewCounter", func(t *testing.T) {
		c := NewCounter("test_counter", "Test counter metric")
		if c == nil {
			t.Error("NewCounter returned nil")
		}
	})

	t.Run("NewSizeGauge", func(t *testing.T) {
		g := NewSizeGauge("test_gauge", "Test gauge metric")
		if g == nil {
			t.Error("NewSizeGauge returned nil")
		}
	})

	t.Run("NewSizeGaugeVec", func(t *testing.T) {
		gv := NewSizeGaugeVec("test_gauge_vec", "Test gauge vec metric", []string{"label"})
		if gv == nil {
			t.Error("NewSizeGaugeVec returned nil")
		}
	})

	t.Run("NewCounterVec", func(t *testing.T) {
		cv := NewCounterVec("test_counter_vec", "Test counter vec metric", []string{"label"})
		if cv == nil {
			t.Error("NewCounterVec returned nil")
		}
	})

	t.Run("NewGaugeVec", func(t *testing.T) {
		gv := NewGaugeVec("test_gauge_vec2", "Test gauge vec metric", []string{"label"})
		if gv == nil {
			t.Error("NewGaugeVec returned nil")
		}
	})

	t.Run("NewGauge", func(t *testing.T) {
		g := NewGauge("test_gauge2", "Test gauge metric")
		if g == nil {
			t.Error("NewGauge returned nil")
		}
	})
}

// TestStandardBuckets verifies that standard bucket definitions are correct
func TestStandardBuckets(t *testing.T) {
	t.Run("DurationBuckets", func(t *testing.T) {
		expected := []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300}
		if len(DurationBuckets) != len(expected) {
			t.Errorf("Expected %d duration buckets, got %d", len(expected), len(DurationBuckets))
		}
		for i, v := range expected {
			if DurationBuckets[i] != v {
				t.Errorf("Duration bucket[%d]: expected %v, got %v", i, v, DurationBuckets[i])
			}
		}
	})

	t.Run("BytesBuckets", func(t *testing.T) {
		expected := []float64{1024, 10240, 102400, 1048576, 10485760, 104857600, 1073741824}
		if len(BytesBuckets) != len(expected) {
			t.Errorf("Expected %d bytes buckets, got %d", len(expected), len(BytesBuckets))
		}
		for i, v := range expected {
			if BytesBuckets[i] != v {
				t.Errorf("Bytes bucket[%d]: expected %v, got %v", i, v, BytesBuckets[i])
			}
		}
	})
}

// TestCleanupMetricHelpers tests cleanup subsystem helper functions
func TestCleanupMetricHelpers(t *testing.T) {
	Init() // Ensure metrics are initialized

	t.Run("RecordCleanupRun", func(t *testing.T) {
		// Should not panic
		RecordCleanupRun("startup")
		RecordCleanupRun("timer")
		RecordCleanupRun("signal")
	})
}

// TestDaemonMetricHelpers tests daemon subsystem helper functions
func TestDaemonMetricHelpers(t *testing.T) {
	Init() // Ensure metrics are initialized

	t.Run("UpdateFreeSpacePercent", func(t *testing.T) {
		// Should not panic
		UpdateFreeSpacePercent("/srv/media", 85.5)
		UpdateFreeSpacePercent("/home/user/downloads", 42.3)
	})

	t.Run("UpdateRootDiskMetrics", func(t *testing.T) {
		// Should not panic
		UpdateRootDiskMetrics("/srv/media", disk.Usage{FreeBytes: 500, TotalBytes: 1000})
		UpdateRootDiskMetrics("/tmp", disk.Usage{})
	})

	t.Run("SetRootFilesScanned", func(t *testing.T) {
		// Should not panic
		SetRootFilesScanned("/srv/media", 1234)
		SetRootFilesScanned("/srv/media", 0)
	})
}

// TestMetricIncrements verifies metrics can be incremented/updated
func TestMetricIncrements(t *testing.T) {
	Init()

	t.Run("IncrementCounters", func(t *testing.T) {
		// Should not panic
		FilesHashedTotal.Inc()
		BytesHashedTotal.Add(4096)
		FilesDeletedTotal.Inc()
		BytesReclaimedTotal.Add(1024)
		DeleteErrorsTotal.Inc()
		ErrorsTotal.Inc()
	})

	t.Run("ObserveHistogram", func(t *testing.T) {
		// Should not panic
		ScanDurationSeconds.Observe(1.5)
		ScanDurationSeconds.Observe(30.2)
	})

	t.Run("SetGauges", func(t *testing.T) {
		// Should not panic
		CleanupLastRunTimestamp.Set(1234567890)
		DuplicateGroupsCurrent.Set(3)
		DuplicateFilesCurrent.Set(7)
		HashWorkersActive.Set(4)
	})

	t.Run("LabeledMetrics", func(t *testing.T) {
		// Should not panic
		RunsTotal.WithLabelValues("timer").Inc()
		FreeSpacePercent.WithLabelValues("/srv/media").Set(77.7)
	})
}

// TestHealthChecker exercises component registration and check execution
func TestHealthChecker(t *testing.T) {
	Init()

	t.Run("AllHealthy", func(t *testing.T) {
		hc := NewHealthChecker(time.Minute)
		hc.RegisterComponent("database", func() error { return nil }, 0)
		hc.RegisterComponent("scanner", func() error { return nil }, 0)

		hc.runChecks()

		if !hc.IsHealthy() {
			t.Error("expected healthy checker when all components pass")
		}
		health := hc.GetHealth()
		if len(health) != 2 {
			t.Errorf("expected 2 components, got %d", len(health))
		}
		for name, ok := range health {
			if !ok {
				t.Errorf("component %s should be healthy", name)
			}
		}
	})

	t.Run("FailingComponent", func(t *testing.T) {
		hc := NewHealthChecker(time.Minute)
		hc.RegisterComponent("database", func() error { return errors.New("connection lost") }, 0)
		hc.RegisterComponent("scanner", func() error { return nil }, 0)

		hc.runChecks()

		if hc.IsHealthy() {
			t.Error("expected unhealthy checker when a component fails")
		}
		if hc.GetHealth()["database"] {
			t.Error("database component should be unhealthy")
		}
		if !hc.GetHealth()["scanner"] {
			t.Error("scanner component should stay healthy")
		}
	})

	t.Run("RecoveryResetsFailureCount", func(t *testing.T) {
		failing := true
		hc := NewHealthChecker(time.Minute)
		hc.RegisterComponent("flaky", func() error {
			if failing {
				return errors.New("transient")
			}
			return nil
		}, 0)

		hc.runChecks()
		if hc.IsHealthy() {
			t.Fatal("expected unhealthy checker while component fails")
		}

		failing = false
		hc.runChecks()
		if !hc.IsHealthy() {
			t.Error("expected healthy checker after component recovers")
		}
	})

	t.Run("CheckTimeout", func(t *testing.T) {
		hc := NewHealthChecker(time.Minute)
		hc.RegisterComponent("slow", func() error {
			time.Sleep(200 * time.Millisecond)
			return nil
		}, 10*time.Millisecond)

		hc.runChecks()

		if hc.IsHealthy() {
			t.Error("expected unhealthy checker when a check times out")
		}
	})

	t.Run("StartStop", func(t *testing.T) {
		hc := NewHealthChecker(10 * time.Millisecond)
		hc.RegisterComponent("noop", func() error { return nil }, 0)

		hc.Start()
		time.Sleep(30 * time.Millisecond)
		hc.Stop()

		if !hc.IsHealthy() {
			t.Error("expected healthy checker after clean start/stop")
		}
		if hc.GetUptime() <= 0 {
			t.Error("uptime should be positive")
		}
	})

	t.Run("StopTwiceIsSafe", func(t *testing.T) {
		hc := NewHealthChecker(10 * time.Millisecond)
		hc.RegisterComponent("noop", func() error { return nil }, 0)

		hc.Start()
		hc.Stop()
		hc.Stop()
	})

	t.Run("SlowCheckDoesNotBlockReaders", func(t *testing.T) {
		release := make(chan struct{})
		hc := NewHealthChecker(time.Minute)
		hc.RegisterComponent("nfs_root", func() error {
			<-release
			return nil
		}, 5*time.Second)

		done := make(chan struct{})
		go func() {
			hc.runChecks()
			close(done)
		}()

		// Health reads must answer while the check is still hung
		answered := make(chan bool, 1)
		go func() {
			answered <- hc.IsHealthy()
		}()
		select {
		case ok := <-answered:
			if !ok {
				t.Error("component should stay healthy until its check fails")
			}
		case <-time.After(2 * time.Second):
			t.Error("IsHealthy blocked behind a hung check")
		}

		close(release)
		<-done
	})
}
