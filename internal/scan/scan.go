package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"dupesweep/internal/config"
	"dupesweep/internal/disk"
	"dupesweep/internal/fingerprint"
	"dupesweep/internal/limiter"
	"dupesweep/internal/metrics"
)

// Logger interface for structured logging
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// stdLogger wraps standard log.Logger to implement Logger interface
type stdLogger struct {
	*log.Logger
}

func (l *stdLogger) Info(msg string, args ...interface{}) {
	l.logWithLevel("INFO", msg, args...)
}

func (l *stdLogger) Warn(msg string, args ...interface{}) {
	l.logWithLevel("WARN", msg, args...)
}

func (l *stdLogger) Debug(msg string, args ...interface{}) {
	l.logWithLevel("DEBUG", msg, args...)
}

func (l *stdLogger) logWithLevel(level, msg string, args ...interface{}) {
	// Format key-value pairs
	var parts []interface{}
	parts = append(parts, fmt.Sprintf("[%s]", level), msg)
	parts = append(parts, args...)
	l.Logger.Println(parts...)
}

// Metrics interface for scan metrics
type Metrics interface {
	FilesHashedTotal() prometheus.Counter
	BytesHashedTotal() prometheus.Counter
	HashErrorsTotal() prometheus.Counter
	DuplicateGroups() prometheus.Gauge
	DuplicateFiles() prometheus.Gauge
	DuplicateSize() prometheus.Histogram
	WorkersActive() prometheus.Gauge
}

// scanMetrics wraps global metrics to implement Metrics interface
type scanMetrics struct{}

func (m *scanMetrics) FilesHashedTotal() prometheus.Counter {
	return metrics.FilesHashedTotal
}

func (m *scanMetrics) BytesHashedTotal() prometheus.Counter {
	return metrics.BytesHashedTotal
}

func (m *scanMetrics) HashErrorsTotal() prometheus.Counter {
	return metrics.HashErrorsTotal
}

func (m *scanMetrics) DuplicateGroups() prometheus.Gauge {
	return metrics.DuplicateGroupsCurrent
}

func (m *scanMetrics) DuplicateFiles() prometheus.Gauge {
	return metrics.DuplicateFilesCurrent
}

func (m *scanMetrics) DuplicateSize() prometheus.Histogram {
	return metrics.DuplicateSizeBytes
}

func (m *scanMetrics) WorkersActive() prometheus.Gauge {
	return metrics.HashWorkersActive
}

// ErrInvalidRoot reports a scan root that does not exist or is not a directory
var ErrInvalidRoot = errors.New("scan root is not a directory")

// FileRecord describes one regular file that was fingerprinted
type FileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
	Digest  fingerprint.Digest
}

// DuplicateGroup holds every file sharing one content digest, members
// in the order the walk first encountered them
type DuplicateGroup struct {
	Digest fingerprint.Digest
	Files  []FileRecord
}

// Stats summarizes a single scan pass
type Stats struct {
	FilesScanned    int   // regular files considered
	FilesExcluded   int   // filtered by pattern or size
	FilesUnreadable int   // open or read failures, skipped
	BytesHashed     int64
	DuplicateGroups int
	DuplicateFiles  int // members across all duplicate groups
	Duration        time.Duration
}

// Scanner fingerprints files under a root and groups them by digest
type Scanner struct {
	logger  Logger
	metrics Metrics
	fp      *fingerprint.Fingerprinter
	cfg     *config.Config
}

// NewScanner creates a Scanner from the given config. A nil logger
// falls back to the standard library default.
func NewScanner(cfg *config.Config, logger *log.Logger) *Scanner {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scanner{
		logger:  &stdLogger{Logger: logger},
		metrics: &scanMetrics{},
		fp:      fingerprint.New(limiter.NewReadLimiter(cfg.Hashing.MaxReadMBPerSec)),
		cfg:     cfg,
	}
}

// walkEntry is a file found by the walk, prior to fingerprinting
type walkEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// hashResult is the outcome of fingerprinting one walk entry
type hashResult struct {
	digest fingerprint.Digest
	err    error
}

// FindDuplicates walks root and returns every group of byte-identical
// files beneath it, in first-encounter order. Groups hold at least two
// members; an empty result means nothing under root is duplicated.
func (s *Scanner) FindDuplicates(ctx context.Context, root string) ([]DuplicateGroup, *Stats, error) {
	start := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}

	// A stale mount would hang the walk, probe before descending
	if s.cfg.NFSTimeout > 0 {
		if disk.IsNFSStale(root, time.Duration(s.cfg.NFSTimeout)*time.Second) {
			return nil, nil, fmt.Errorf("stale NFS mount: %s", root)
		}
	}

	workers := s.cfg.Hashing.Concurrency
	if workers < 1 {
		workers = 1
	}

	s.logger.Info("Starting duplicate scan",
		"root", root,
		"workers", workers,
		"min_size_bytes", s.cfg.MinSizeBytes,
		"exclude_patterns", len(s.cfg.ExcludePatterns),
	)

	stats := &Stats{}
	entries, err := s.collect(root, stats)
	if err != nil {
		return nil, nil, err
	}

	results, err := s.hashEntries(ctx, entries, workers)
	if err != nil {
		return nil, nil, err
	}

	groups := s.group(entries, results, stats)
	stats.Duration = time.Since(start)

	s.metrics.DuplicateGroups().Set(float64(stats.DuplicateGroups))
	s.metrics.DuplicateFiles().Set(float64(stats.DuplicateFiles))

	s.logger.Info("Scan complete",
		"root", root,
		"files_scanned", stats.FilesScanned,
		"files_excluded", stats.FilesExcluded,
		"files_unreadable", stats.FilesUnreadable,
		"duplicate_groups", stats.DuplicateGroups,
		"duplicate_files", stats.DuplicateFiles,
		"bytes_hashed", stats.BytesHashed,
		"duration", stats.Duration.Round(time.Millisecond).String(),
	)

	return groups, stats, nil
}

// collect walks root and gathers regular files in traversal order.
// filepath.Walk does not follow symlinked directories, and symlinks to
// files are not regular, so links never enter the candidate set.
func (s *Scanner) collect(root string, stats *Stats) ([]walkEntry, error) {
	var entries []walkEntry

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Log and continue on unreadable subtrees
			s.logger.Warn("Cannot access path, skipping", "path", path, "error", err)
			return nil
		}

		if info.IsDir() {
			if path != root && s.isExcluded(info.Name()) {
				s.logger.Debug("Excluded directory", "path", path)
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		stats.FilesScanned++

		if s.isExcluded(info.Name()) {
			stats.FilesExcluded++
			return nil
		}
		if info.Size() < s.cfg.MinSizeBytes {
			stats.FilesExcluded++
			return nil
		}

		entries = append(entries, walkEntry{
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan root %s: %w", root, err)
	}

	return entries, nil
}

// hashEntries fingerprints every entry, keeping results aligned with
// the entry order so grouping is identical no matter how many workers
// ran. Unreadable files land in the result slice; only cancellation
// aborts the pass.
func (s *Scanner) hashEntries(ctx context.Context, entries []walkEntry, workers int) ([]hashResult, error) {
	results := make([]hashResult, len(entries))

	s.metrics.WorkersActive().Set(float64(workers))
	defer s.metrics.WorkersActive().Set(0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range entries {
		i := i
		g.Go(func() error {
			digest, err := s.fp.File(gctx, entries[i].path)
			if err != nil {
				var unreadable *fingerprint.UnreadableFileError
				if errors.As(err, &unreadable) {
					results[i] = hashResult{err: err}
					return nil
				}
				return err
			}
			results[i] = hashResult{digest: digest}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// group buckets hashed entries by digest, preserving first-encounter
// order, and keeps only groups with two or more members
func (s *Scanner) group(entries []walkEntry, results []hashResult, stats *Stats) []DuplicateGroup {
	index := make(map[fingerprint.Digest]int)
	var all []DuplicateGroup

	for i, entry := range entries {
		if results[i].err != nil {
			s.logger.Warn("Skipping unreadable file", "path", entry.path, "error", results[i].err)
			stats.FilesUnreadable++
			s.metrics.HashErrorsTotal().Inc()
			continue
		}

		stats.BytesHashed += entry.size

		rec := FileRecord{
			Path:    entry.path,
			Size:    entry.size,
			ModTime: entry.modTime,
			Digest:  results[i].digest,
		}

		if gi, ok := index[rec.Digest]; ok {
			all[gi].Files = append(all[gi].Files, rec)
		} else {
			index[rec.Digest] = len(all)
			all = append(all, DuplicateGroup{Digest: rec.Digest, Files: []FileRecord{rec}})
		}
	}

	hashed := len(entries) - stats.FilesUnreadable
	s.metrics.FilesHashedTotal().Add(float64(hashed))
	s.metrics.BytesHashedTotal().Add(float64(stats.BytesHashed))

	var groups []DuplicateGroup
	for _, g := range all {
		if len(g.Files) > 1 {
			groups = append(groups, g)
			stats.DuplicateFiles += len(g.Files)
			s.metrics.DuplicateSize().Observe(float64(g.Files[0].Size))
		}
	}
	stats.DuplicateGroups = len(groups)

	return groups
}

// isExcluded matches a base name against the configured glob patterns
func (s *Scanner) isExcluded(name string) bool {
	for _, pattern := range s.cfg.ExcludePatterns {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			s.logger.Warn("Invalid exclude pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
