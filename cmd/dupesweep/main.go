package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"dupesweep/internal/cleanup"
	"dupesweep/internal/config"
	"dupesweep/internal/database"
	"dupesweep/internal/disk"
	"dupesweep/internal/exitcodes"
	"dupesweep/internal/logging"
	"dupesweep/internal/metrics"
	"dupesweep/internal/retention"
	"dupesweep/internal/scan"
	"dupesweep/internal/scheduler"
)

const defaultConfigPath = "/etc/dupesweep/config.yaml"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	rootFlag := flag.String("root", "", "Directory tree to scan for duplicates")
	dryRun := flag.Bool("dry-run", false, "Report what would be deleted without deleting")
	yes := flag.Bool("yes", false, "Skip the confirmation prompt (answers yes)")
	daemon := flag.Bool("daemon", false, "Run continuously on the configured interval")
	once := flag.Bool("once", false, "Run a single non-interactive cycle and exit")
	flag.Parse()

	if *daemon || *once {
		os.Exit(runDaemon(*configPath, *dryRun, *once))
	}
	os.Exit(runInteractive(*configPath, *rootFlag, *dryRun, *yes))
}

// runInteractive performs one scan-and-delete pass with a confirmation
// prompt, reporting to stdout. Diagnostics go to stderr so the report
// stays readable.
func runInteractive(configPath, rootFlag string, dryRun, yes bool) int {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return exitcodes.InvalidConfig
		}
	} else {
		cfg, err = config.Default()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			return exitcodes.InvalidConfig
		}
	}

	// Root precedence: -root flag, positional argument, config, prompt
	root := rootFlag
	if root == "" && flag.NArg() > 0 {
		root = flag.Arg(0)
	}
	if root != "" {
		cfg.Roots = []string{root}
	}
	if len(cfg.Roots) == 0 {
		root = promptForRoot(os.Stdin)
		if root == "" {
			fmt.Fprintln(os.Stderr, "Error: no directory given.")
			return exitcodes.InvalidRoot
		}
		cfg.Roots = []string{root}
	}

	roots := make([]string, 0, len(cfg.Roots))
	for _, r := range cfg.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid path %q: %v\n", r, err)
			return exitcodes.InvalidRoot
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			fmt.Fprintf(os.Stderr, "Error: %q is not an accessible directory.\n", r)
			return exitcodes.InvalidRoot
		}
		roots = append(roots, abs)
	}
	cfg.Roots = roots

	metrics.Init()

	// Ctrl-C stops between groups, never mid-group
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "Interrupted.")
		cancel()
	}()

	scanner := scan.NewScanner(cfg, logger)
	resolver := retention.NewResolver(logger)

	var decisions []retention.Decision
	for _, r := range cfg.Roots {
		fmt.Printf("Scanning %s ...\n", r)
		groups, stats, err := scanner.FindDuplicates(ctx, r)
		if err != nil {
			if errors.Is(err, scan.ErrInvalidRoot) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return exitcodes.InvalidRoot
			}
			fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
			return exitcodes.RuntimeError
		}
		fmt.Printf("Scanned %d file(s).\n", stats.FilesScanned)
		decisions = append(decisions, resolver.Resolve(groups)...)
	}

	if len(decisions) == 0 {
		fmt.Println("No duplicate files found.")
		return exitcodes.Success
	}

	// List every group before anything is deleted
	fmt.Printf("\nFound %d duplicate group(s):\n", len(decisions))
	for i, d := range decisions {
		fmt.Printf("\nGroup %d (digest %s, %d files):\n", i+1, d.Digest.Short(), d.GroupSize())
		fmt.Printf("  keep    %s (modified %s)\n", d.Keep.Path, formatModTime(d.Keep))
		for _, m := range d.Delete {
			fmt.Printf("  delete  %s (modified %s)\n", m.Path, formatModTime(m))
		}
	}

	if dryRun {
		fmt.Println("\nDry run: no files will be deleted.")
	} else if !yes {
		if !confirm(os.Stdin) {
			fmt.Println("Cancelled. No files were deleted.")
			return exitcodes.Success
		}
	}

	var db *database.HistoryDB
	if cfg.DatabasePath != "" {
		db, err = database.NewHistoryDB(cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open history database: %v\n", err)
			return exitcodes.RuntimeError
		}
		defer db.Close()
	}

	cleaner := cleanup.NewCleaner(logger, nil, dryRun, db)
	report, err := cleaner.Execute(ctx, cfg, decisions)
	interrupted := err != nil && errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		return exitcodes.RuntimeError
	}

	verb := "Deleted"
	if report.DryRun {
		verb = "Would delete"
	}
	fmt.Printf("\n%s %d file(s), reclaiming %s.\n", verb, report.FilesDeleted, formatBytes(report.BytesReclaimed))
	if report.Skipped > 0 {
		fmt.Printf("Skipped %d file(s).\n", report.Skipped)
	}
	if !report.DryRun && report.FilesDeleted > 0 {
		for _, r := range cfg.Roots {
			if u, statErr := disk.Stat(r); statErr == nil {
				fmt.Printf("Free space on %s: %s of %s (%.1f%%)\n",
					r, formatBytes(u.FreeBytes), formatBytes(u.TotalBytes), u.FreePercent())
			}
		}
	}
	if report.Errors > 0 {
		fmt.Printf("%d deletion(s) failed, see log for details.\n", report.Errors)
		return exitcodes.RuntimeError
	}
	if interrupted {
		fmt.Println("Run interrupted before all groups were processed.")
		return exitcodes.RuntimeError
	}
	return exitcodes.Success
}

// runDaemon runs the scheduler, either once or on the configured interval.
func runDaemon(configPath string, dryRun, once bool) int {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Initialize logger
	logger := logging.New()

	logger.Println("dupesweep daemon starting...")
	logger.Printf("Config file: %s", configPath)
	if dryRun {
		logger.Println("DRY RUN MODE: No files will be deleted")
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("ERROR: Failed to load config: %v", err)
		return exitcodes.InvalidConfig
	}

	// Rebuild the logger so the configured rotation window applies
	logger = logging.NewWithConfig(cfg)

	// Initialize metrics (Prometheus)
	metrics.Init()
	if cfg.Prometheus.Port > 0 {
		addr := cfg.PrometheusAddress()
		logger.Printf("Starting Prometheus metrics on %s", addr)
		metrics.StartServer(addr, logger)
	}

	hc := metrics.NewHealthChecker(time.Minute)
	hc.RegisterComponent("roots", func() error {
		for _, r := range cfg.Roots {
			info, err := os.Stat(r)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", r)
			}
		}
		return nil
	}, 10*time.Second)

	// Initialize database for deletion history
	var db *database.HistoryDB
	if cfg.DatabasePath != "" {
		logger.Printf("Opening history database: %s", cfg.DatabasePath)
		db, err = database.NewHistoryDB(cfg.DatabasePath)
		if err != nil {
			logger.Printf("ERROR: Failed to open database: %v", err)
			return exitcodes.RuntimeError
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Printf("ERROR: Failed to close database: %v", err)
			}
		}()
		hc.RegisterComponent("database", db.Ping, 5*time.Second)
	}

	metrics.SetHealthChecker(hc)
	hc.Start()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	// Run scheduler
	logger.Println("Starting scheduler...")
	exit := exitcodes.Success
	if once {
		// Run once and exit
		if err := scheduler.RunOnceWithDB(ctx, cfg, dryRun, logger, db); err != nil {
			logger.Printf("ERROR: Cycle failed: %v", err)
			exit = exitcodes.RuntimeError
		} else {
			logger.Println("Cycle completed successfully")
		}
	} else {
		// SIGUSR1 and POST /trigger start a cycle between ticks
		trigger := make(chan os.Signal, 1)
		signal.Notify(trigger, syscall.SIGUSR1)
		metrics.SetTriggerChannel(trigger)

		if err := scheduler.RunWithDB(ctx, cfg, dryRun, logger, db, trigger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("ERROR: Scheduler failed: %v", err)
			exit = exitcodes.RuntimeError
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metrics.Shutdown(shutdownCtx, logger)

	logger.Printf("dupesweep daemon stopped (uptime %.0fs)", hc.GetUptime())
	return exit
}

// promptForRoot asks for a directory on stdin. Surrounding whitespace and
// quotes are stripped so drag-and-drop paths work.
func promptForRoot(r io.Reader) string {
	fmt.Print("Directory to scan for duplicates: ")
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	root := strings.TrimSpace(line)
	root = strings.Trim(root, `"'`)
	return root
}

// confirm reads the deletion confirmation. Only "y" or "yes" proceed.
func confirm(r io.Reader) bool {
	fmt.Print("\nDelete all files marked \"delete\"? [y/N]: ")
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func formatModTime(m retention.Member) string {
	if m.Unstattable {
		return "unknown"
	}
	return m.ModTime.Format("2006-01-02 15:04")
}

// formatBytes renders a byte count in human-readable binary units
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
