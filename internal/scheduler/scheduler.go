package scheduler

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"dupesweep/internal/cleanup"
	"dupesweep/internal/config"
	"dupesweep/internal/database"
	"dupesweep/internal/disk"
	"dupesweep/internal/metrics"
	"dupesweep/internal/retention"
	"dupesweep/internal/scan"
)

func RunOnce(ctx context.Context, cfg *config.Config, dryRun bool, logger *log.Logger) error {
	return RunOnceWithDB(ctx, cfg, dryRun, logger, nil)
}

func RunOnceWithDB(ctx context.Context, cfg *config.Config, dryRun bool, logger *log.Logger, db *database.HistoryDB) error {
	return runCycle(ctx, cfg, dryRun, logger, db, "manual")
}

func Run(ctx context.Context, cfg *config.Config, dryRun bool, logger *log.Logger) error {
	return RunWithDB(ctx, cfg, dryRun, logger, nil, nil)
}

// RunWithDB executes cycles until ctx is canceled: once at startup, then on
// every interval tick and every signal received on trigger. A nil trigger
// channel disables signal-driven cycles.
func RunWithDB(ctx context.Context, cfg *config.Config, dryRun bool, logger *log.Logger, db *database.HistoryDB, trigger chan os.Signal) error {
	if logger == nil {
		logger = log.Default()
	}
	if cfg == nil {
		return errors.New("nil config")
	}

	if err := runCycle(ctx, cfg, dryRun, logger, db, "startup"); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Println("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := runCycle(ctx, cfg, dryRun, logger, db, "timer"); err != nil {
				logger.Printf("error running cycle: %v", err)
			}
		case <-trigger:
			logger.Println("cycle triggered by signal")
			if err := runCycle(ctx, cfg, dryRun, logger, db, "signal"); err != nil {
				logger.Printf("error running cycle: %v", err)
			}
		}
	}
}

// runCycle executes one scan, resolve, cleanup pass over all configured roots.
func runCycle(ctx context.Context, cfg *config.Config, dryRun bool, logger *log.Logger, db *database.HistoryDB, trigger string) error {
	if logger == nil {
		logger = log.Default()
	}
	if cfg == nil {
		return errors.New("nil config")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	start := time.Now()

	// Record run timestamp and what started the cycle
	metrics.RecordCleanupRun(trigger)

	// Refresh filesystem gauges for all scan roots
	updateDiskMetrics(cfg, logger)

	// Unattended deletion requires auto_confirm; otherwise report only
	effectiveDryRun := dryRun
	if !dryRun && !cfg.AutoConfirm {
		logger.Println("auto_confirm is disabled, running in report-only mode")
		effectiveDryRun = true
	}

	scanner := scan.NewScanner(cfg, logger)
	resolver := retention.NewResolver(logger)

	scanStart := time.Now()
	var decisions []retention.Decision
	for _, root := range cfg.Roots {
		groups, stats, err := scanner.FindDuplicates(ctx, root)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// One bad root must not stop the others
			logger.Printf("scan failed for %s: %v", root, err)
			metrics.ErrorsTotal.Inc()
			continue
		}
		metrics.SetRootFilesScanned(root, stats.FilesScanned)
		decisions = append(decisions, resolver.Resolve(groups)...)
	}
	metrics.ScanDurationSeconds.Observe(time.Since(scanStart).Seconds())

	cleaner := cleanup.NewCleaner(logger, nil, effectiveDryRun, db)
	report, err := cleaner.Execute(ctx, cfg, decisions)
	if err != nil {
		metrics.ErrorsTotal.Inc()
		return err
	}

	elapsed := time.Since(start).Seconds()
	logger.Printf("cycle complete: groups=%d deleted=%d freed=%d bytes skipped=%d errors=%d duration=%.3fs",
		len(report.Groups), report.FilesDeleted, report.BytesReclaimed, report.Skipped, report.Errors, elapsed)
	return nil
}

// updateDiskMetrics refreshes filesystem-level gauges for every scan root
func updateDiskMetrics(cfg *config.Config, logger *log.Logger) {
	for _, root := range cfg.Roots {
		u, err := disk.Stat(root)
		if err != nil {
			logger.Printf("failed to stat filesystem for %s: %v", root, err)
			continue
		}
		metrics.UpdateRootDiskMetrics(root, u)
	}
}
