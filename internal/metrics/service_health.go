package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Daemon health metrics
var (
	// DaemonHealthy is 1 while every registered component passes its check
	DaemonHealthy prometheus.Gauge

	// DaemonStartTime records when the daemon came up
	DaemonStartTime prometheus.Gauge

	// ComponentHealthy tracks each component's latest check outcome
	ComponentHealthy *prometheus.GaugeVec

	// LastHealthCheck records when each component was last checked
	LastHealthCheck *prometheus.GaugeVec

	// HealthCheckDuration tracks check latency per component
	HealthCheckDuration *prometheus.HistogramVec

	// HealthCheckFailures counts consecutive check failures per component
	HealthCheckFailures *prometheus.GaugeVec

	// HealthCheckTimeouts counts checks abandoned at their deadline
	HealthCheckTimeouts prometheus.Counter
)

var errCheckTimeout = errors.New("health check timed out")

// HealthChecker checks the daemon's dependencies on an interval. The
// daemon registers one component per concern it cannot run without
// (scan roots, history database) and /health serves the combined result.
type HealthChecker struct {
	mu            sync.RWMutex
	startTime     time.Time
	components    map[string]*component
	checkInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	started       bool
}

// component is one registered check and its latest outcome
type component struct {
	check     func() error
	timeout   time.Duration
	lastCheck time.Time
	healthy   bool
	failures  int
}

func initServiceHealthMetrics() {
	DaemonHealthy = NewGauge(
		"dupesweep_daemon_healthy",
		"Overall daemon health (1=healthy, 0=unhealthy).",
	)

	DaemonStartTime = NewGauge(
		"dupesweep_daemon_start_timestamp_seconds",
		"Unix timestamp when the daemon started.",
	)

	ComponentHealthy = NewGaugeVec(
		"dupesweep_component_healthy",
		"Component health from the most recent check (1=healthy, 0=unhealthy).",
		[]string{"component"},
	)

	LastHealthCheck = NewGaugeVec(
		"dupesweep_last_health_check_timestamp_seconds",
		"Unix timestamp of each component's most recent check.",
		[]string{"component"},
	)

	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dupesweep_health_check_duration_seconds",
			Help:    "Health check latency per component.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	HealthCheckFailures = NewGaugeVec(
		"dupesweep_health_check_failures_consecutive",
		"Consecutive check failures per component.",
		[]string{"component"},
	)

	HealthCheckTimeouts = NewCounter(
		"dupesweep_health_check_timeouts_total",
		"Total number of health checks abandoned at their deadline.",
	)
}

func registerServiceHealthMetrics() {
	prometheus.MustRegister(DaemonHealthy)
	prometheus.MustRegister(DaemonStartTime)
	prometheus.MustRegister(ComponentHealthy)
	prometheus.MustRegister(LastHealthCheck)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(HealthCheckFailures)
	prometheus.MustRegister(HealthCheckTimeouts)
}

// NewHealthChecker creates a checker that runs checks on the given interval
// once Start is called.
func NewHealthChecker(interval time.Duration) *HealthChecker {
	hc := &HealthChecker{
		startTime:     time.Now(),
		components:    make(map[string]*component),
		checkInterval: interval,
		stopCh:        make(chan struct{}),
	}

	DaemonStartTime.Set(float64(hc.startTime.Unix()))
	DaemonHealthy.Set(1)

	return hc
}

// RegisterComponent adds a named check. An error return marks the
// component unhealthy until it passes again; timeout 0 waits forever.
func (hc *HealthChecker) RegisterComponent(name string, check func() error, timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.components[name] = &component{
		check:   check,
		timeout: timeout,
		healthy: true,
	}

	ComponentHealthy.WithLabelValues(name).Set(1)
	HealthCheckFailures.WithLabelValues(name).Set(0)
}

// Start begins periodic probing. Register every component first.
func (hc *HealthChecker) Start() {
	hc.mu.Lock()
	if hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = true
	hc.mu.Unlock()

	hc.wg.Add(1)
	go hc.checkLoop()
}

// Stop halts probing and waits for the loop to exit. Safe to call twice.
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = false
	hc.mu.Unlock()

	close(hc.stopCh)
	hc.wg.Wait()
}

func (hc *HealthChecker) checkLoop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	hc.runChecks()

	for {
		select {
		case <-ticker.C:
			hc.runChecks()
		case <-hc.stopCh:
			return
		}
	}
}

// runChecks runs every component check, holding the lock only to snapshot
// the set and to record outcomes. A check hung on a dead mount never
// blocks /health readers.
func (hc *HealthChecker) runChecks() {
	hc.mu.RLock()
	pending := make(map[string]*component, len(hc.components))
	for name, comp := range hc.components {
		pending[name] = comp
	}
	hc.mu.RUnlock()

	healthy := true
	for name, comp := range pending {
		if !hc.checkOne(name, comp) {
			healthy = false
		}
	}

	if healthy {
		DaemonHealthy.Set(1)
	} else {
		DaemonHealthy.Set(0)
	}
}

// checkOne runs a single check and records the outcome
func (hc *HealthChecker) checkOne(name string, comp *component) bool {
	start := time.Now()
	var err error
	if comp.timeout > 0 {
		err = runWithTimeout(comp.check, comp.timeout)
	} else {
		err = comp.check()
	}
	HealthCheckDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	hc.mu.Lock()
	defer hc.mu.Unlock()

	comp.lastCheck = time.Now()
	LastHealthCheck.WithLabelValues(name).Set(float64(comp.lastCheck.Unix()))

	if err != nil {
		comp.healthy = false
		comp.failures++
		ComponentHealthy.WithLabelValues(name).Set(0)
		HealthCheckFailures.WithLabelValues(name).Set(float64(comp.failures))
		ErrorsTotal.Inc()
		return false
	}

	comp.healthy = true
	comp.failures = 0
	ComponentHealthy.WithLabelValues(name).Set(1)
	HealthCheckFailures.WithLabelValues(name).Set(0)
	return true
}

// runWithTimeout abandons a check at its deadline. The buffered channel
// lets the late check goroutine finish its send and exit.
func runWithTimeout(check func() error, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- check()
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		HealthCheckTimeouts.Inc()
		return errCheckTimeout
	}
}

// GetHealth reports each component's latest check outcome
func (hc *HealthChecker) GetHealth() map[string]bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	health := make(map[string]bool, len(hc.components))
	for name, comp := range hc.components {
		health[name] = comp.healthy
	}
	return health
}

// IsHealthy reports whether every component passed its latest check
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	for _, comp := range hc.components {
		if !comp.healthy {
			return false
		}
	}
	return true
}

// GetUptime returns seconds since the daemon started
func (hc *HealthChecker) GetUptime() float64 {
	return time.Since(hc.startTime).Seconds()
}
