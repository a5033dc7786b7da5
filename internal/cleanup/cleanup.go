package cleanup

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"dupesweep/internal/config"
	"dupesweep/internal/database"
	"dupesweep/internal/disk"
	"dupesweep/internal/fingerprint"
	"dupesweep/internal/fsops"
	"dupesweep/internal/metrics"
	"dupesweep/internal/retention"
	"dupesweep/internal/safety"

	"github.com/prometheus/client_golang/prometheus"
)

// Actions recorded for every file a cleanup pass touches
const (
	ActionDelete = "DELETE"
	ActionDryRun = "DRY_RUN"
	ActionSkip   = "SKIP"
	ActionError  = "ERROR"
	ActionKeep   = "KEEP"
)

// Skip reasons
const (
	ReasonUnsafePath     = "unsafe_path"
	ReasonStaleMount     = "stale_mount"
	ReasonAlreadyRemoved = "already_removed"
)

// CleanupLogger interface for structured logging in cleanup
type CleanupLogger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// cleanupStdLogger wraps standard log.Logger to implement CleanupLogger interface
type cleanupStdLogger struct {
	*log.Logger
}

func (l *cleanupStdLogger) Info(msg string, args ...interface{}) {
	l.logWithLevel("INFO", msg, args...)
}

func (l *cleanupStdLogger) Error(msg string, args ...interface{}) {
	l.logWithLevel("ERROR", msg, args...)
}

func (l *cleanupStdLogger) logWithLevel(level, msg string, args ...interface{}) {
	// Format key-value pairs
	var parts []interface{}
	parts = append(parts, fmt.Sprintf("[%s]", level), msg)
	parts = append(parts, args...)
	l.Logger.Println(parts...)
}

// Metrics interface for cleanup metrics
type Metrics interface {
	FilesDeleted() prometheus.Counter
	BytesReclaimed() prometheus.Counter
	DeleteErrors() prometheus.Counter
}

// cleanupMetrics wraps global metrics to implement Metrics interface
type cleanupMetrics struct{}

func (m *cleanupMetrics) FilesDeleted() prometheus.Counter {
	return metrics.FilesDeletedTotal
}

func (m *cleanupMetrics) BytesReclaimed() prometheus.Counter {
	return metrics.BytesReclaimedTotal
}

func (m *cleanupMetrics) DeleteErrors() prometheus.Counter {
	return metrics.DeleteErrorsTotal
}

// Outcome is the result for one delete candidate
type Outcome struct {
	Path   string
	Action string
	Size   int64
	Reason string
}

// GroupReport collects the outcomes for one duplicate group
type GroupReport struct {
	Digest   fingerprint.Digest
	Kept     retention.Member
	Outcomes []Outcome
}

// Report summarizes a full cleanup pass
type Report struct {
	Groups         []GroupReport
	FilesDeleted   int
	BytesReclaimed int64
	Skipped        int
	Errors         int
	DryRun         bool
}

// Cleaner executes retention decisions with structured logging
type Cleaner struct {
	logger    CleanupLogger
	metrics   Metrics
	logFile   *os.File // Optional file for structured logging
	dryRun    bool
	db        *database.HistoryDB // Database for recording event history
	deleter   fsops.Deleter
	validator *safety.Validator
}

// NewCleaner creates a new Cleaner instance
func NewCleaner(logger *log.Logger, logFile *os.File, dryRun bool, db *database.HistoryDB) *Cleaner {
	cleanupLogger := &cleanupStdLogger{Logger: logger}
	if logger == nil {
		cleanupLogger.Logger = log.Default()
	}
	return &Cleaner{
		logger:  cleanupLogger,
		metrics: &cleanupMetrics{},
		logFile: logFile,
		dryRun:  dryRun,
		db:      db,
		deleter: fsops.OSDeleter{},
	}
}

// SetDeleter replaces the filesystem deleter, used by tests to prove
// dry-run performs no delete calls
func (c *Cleaner) SetDeleter(d fsops.Deleter) {
	c.deleter = d
}

// SetValidator replaces the safety validator built from config
func (c *Cleaner) SetValidator(v *safety.Validator) {
	c.validator = v
}

// Execute applies retention decisions: the kept member of each group is
// recorded, every other member goes through safety validation and
// deletion. One failed file never stops the rest. Cancellation is
// honored between groups and returns the partial report.
func (c *Cleaner) Execute(ctx context.Context, cfg *config.Config, decisions []retention.Decision) (*Report, error) {
	validator := c.validator
	if validator == nil {
		validator = safety.NewValidator(cfg.Roots, cfg.ProtectedPaths)
	}

	c.logger.Info("Starting cleanup",
		"total_groups", len(decisions),
		"dry_run", c.dryRun,
	)

	report := &Report{DryRun: c.dryRun}

	for _, d := range decisions {
		if err := ctx.Err(); err != nil {
			c.logger.Error("Cleanup interrupted", "groups_done", len(report.Groups), "error", err)
			return report, err
		}

		gr := GroupReport{Digest: d.Digest, Kept: d.Keep}
		c.recordKeep(d)

		for _, m := range d.Delete {
			outcome := c.removeFile(cfg, validator, d, m)
			gr.Outcomes = append(gr.Outcomes, outcome)

			switch outcome.Action {
			case ActionDelete, ActionDryRun:
				report.FilesDeleted++
				report.BytesReclaimed += outcome.Size
			case ActionSkip:
				report.Skipped++
			case ActionError:
				report.Errors++
			}
		}

		report.Groups = append(report.Groups, gr)
	}

	c.logger.Info("Cleanup complete",
		"groups", len(report.Groups),
		"deleted", report.FilesDeleted,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"bytes_reclaimed", report.BytesReclaimed,
		"dry_run", c.dryRun,
	)

	return report, nil
}

// removeFile deletes one duplicate, in order: safety validation, stale
// mount check, physical removal
func (c *Cleaner) removeFile(cfg *config.Config, validator *safety.Validator, d retention.Decision, m retention.Member) Outcome {
	if err := validator.ValidateDeleteTarget(m.Path); err != nil {
		c.logStructured(ActionSkip, m.Path, m.Size, d, ReasonUnsafePath)
		c.record(ActionSkip, m, d, err.Error())
		return Outcome{Path: m.Path, Action: ActionSkip, Size: m.Size, Reason: ReasonUnsafePath}
	}

	if cfg.NFSTimeout > 0 {
		if disk.IsNFSStale(m.Path, time.Duration(cfg.NFSTimeout)*time.Second) {
			c.logStructured(ActionSkip, m.Path, m.Size, d, ReasonStaleMount)
			c.record(ActionSkip, m, d, ReasonStaleMount)
			return Outcome{Path: m.Path, Action: ActionSkip, Size: m.Size, Reason: ReasonStaleMount}
		}
	}

	if c.dryRun {
		c.logger.Info("[DRY RUN] Would delete duplicate", "path", m.Path, "size", m.Size, "kept", d.Keep.Path)
		c.logStructured(ActionDryRun, m.Path, m.Size, d, "")
		c.record(ActionDryRun, m, d, "")
		return Outcome{Path: m.Path, Action: ActionDryRun, Size: m.Size}
	}

	if err := c.deleter.Remove(m.Path); err != nil {
		// A duplicate vanishing between scan and delete is not an error
		if os.IsNotExist(err) {
			c.logger.Info("File already removed", "path", m.Path)
			c.logStructured(ActionSkip, m.Path, m.Size, d, ReasonAlreadyRemoved)
			c.record(ActionSkip, m, d, ReasonAlreadyRemoved)
			return Outcome{Path: m.Path, Action: ActionSkip, Size: m.Size, Reason: ReasonAlreadyRemoved}
		}

		c.logger.Error("Failed to delete", "path", m.Path, "error", err)
		c.logStructured(ActionError, m.Path, m.Size, d, err.Error())
		c.record(ActionError, m, d, err.Error())
		c.metrics.DeleteErrors().Inc()
		return Outcome{Path: m.Path, Action: ActionError, Size: m.Size, Reason: err.Error()}
	}

	c.logStructured(ActionDelete, m.Path, m.Size, d, "")
	c.record(ActionDelete, m, d, "")
	c.metrics.FilesDeleted().Inc()
	c.metrics.BytesReclaimed().Add(float64(m.Size))
	return Outcome{Path: m.Path, Action: ActionDelete, Size: m.Size}
}

// recordKeep logs and records the surviving member of a group
func (c *Cleaner) recordKeep(d retention.Decision) {
	c.logStructured(ActionKeep, d.Keep.Path, d.Keep.Size, d, "")
	c.record(ActionKeep, d.Keep, d, "")
}

// record writes one event to the history database, best effort
func (c *Cleaner) record(action string, m retention.Member, d retention.Decision, errMsg string) {
	if c.db == nil {
		return
	}

	ev := database.Event{
		Timestamp:    time.Now().UTC(),
		Action:       action,
		Path:         m.Path,
		Size:         m.Size,
		Digest:       d.Digest.String(),
		GroupSize:    d.GroupSize(),
		KeptPath:     d.Keep.Path,
		ErrorMessage: errMsg,
	}
	if !m.Unstattable {
		mt := m.ModTime
		ev.ModTime = &mt
	}

	if dbErr := c.db.RecordEvent(ev); dbErr != nil {
		c.logger.Error("Failed to record to database", "error", dbErr)
		// Don't fail cleanup if DB write fails
	}
}

// logStructured logs with structured format: timestamp, action, path, size, digest, group size, kept path
func (c *Cleaner) logStructured(action, path string, size int64, d retention.Decision, reason string) {
	logEntry := fmt.Sprintf("[%s] %s path=%s size=%d digest=%s group_size=%d kept=%s",
		time.Now().UTC().Format(time.RFC3339),
		action,
		path,
		size,
		d.Digest.Short(),
		d.GroupSize(),
		d.Keep.Path,
	)

	if reason != "" {
		// Escape quotes in reason string for proper log parsing
		escapedReason := strings.ReplaceAll(reason, `"`, `\"`)
		logEntry += fmt.Sprintf(` reason="%s"`, escapedReason)
	}

	// Write to log file if available
	if c.logFile != nil {
		c.logFile.WriteString(logEntry + "\n")
		c.logFile.Sync() // Ensure immediate write to disk
	}

	// Also log to standard logger
	c.logger.Info(logEntry)
}
