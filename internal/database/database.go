package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// HistoryDB manages the SQLite database for duplicate cleanup history
type HistoryDB struct {
	db *sql.DB
}

// Event represents a single action taken on a file during a cleanup pass
type Event struct {
	ID           int64
	Timestamp    time.Time
	Action       string // DELETE, DRY_RUN, SKIP, ERROR, KEEP
	Path         string
	FileName     string
	Size         int64
	Digest       string // hex SHA-256 of the file content
	GroupSize    int    // members in the duplicate group, keeper included
	KeptPath     string
	ModTime      *time.Time // nil when the file could not be statted
	ErrorMessage string
	CreatedAt    time.Time
}

// NewHistoryDB creates a new database connection and initializes schema
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// Open database connection with time parsing enabled
	// Note: SQLite will create the file if it doesn't exist
	// file: prefix with _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Test connection by executing a simple query instead of Ping()
	// This ensures the database file is created if it doesn't exist
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	// Enable WAL mode for better concurrency (multiple readers, one writer)
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	// Optimize for write performance
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	hdb := &HistoryDB{db: db}
	if err = hdb.initSchema(); err != nil {
		return nil, err
	}

	// Clear the deferred error handler since we succeeded
	err = nil
	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		file_name TEXT,
		size INTEGER NOT NULL,

		digest TEXT NOT NULL,
		group_size INTEGER NOT NULL,
		kept_path TEXT,
		mod_time DATETIME,

		error_message TEXT,

		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_action ON events(action);
	CREATE INDEX IF NOT EXISTS idx_digest ON events(digest);
	CREATE INDEX IF NOT EXISTS idx_path ON events(path);
	CREATE INDEX IF NOT EXISTS idx_size ON events(size);
	CREATE INDEX IF NOT EXISTS idx_created_at ON events(created_at);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// RecordEvent inserts one cleanup event into the database
func (d *HistoryDB) RecordEvent(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	query := `
	INSERT INTO events (
		timestamp, action, path, file_name, size,
		digest, group_size, kept_path, mod_time,
		error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(
		query,
		ev.Timestamp,
		ev.Action,
		ev.Path,
		filepath.Base(ev.Path),
		ev.Size,
		ev.Digest,
		ev.GroupSize,
		ev.KeptPath,
		ev.ModTime,
		ev.ErrorMessage,
	)

	return err
}

// Ping verifies the database is reachable, used by health checks
func (d *HistoryDB) Ping() error {
	_, err := d.db.Exec("SELECT 1")
	return err
}

// Close closes the database connection
func (d *HistoryDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *HistoryDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// GetDatabaseStats returns database statistics
func (d *HistoryDB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	// Total records
	var totalRecords int64
	err := d.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&totalRecords)
	if err != nil {
		return nil, err
	}
	stats["total_records"] = totalRecords

	// Database size
	var pageCount, pageSize int64
	err = d.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	if err != nil {
		return nil, err
	}
	err = d.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	if err != nil {
		return nil, err
	}
	stats["database_size_bytes"] = pageCount * pageSize

	// Date range
	var oldestDateStr, newestDateStr sql.NullString
	err = d.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM events").Scan(&oldestDateStr, &newestDateStr)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if oldestDateStr.Valid && oldestDateStr.String != "" {
		if t, ok := parseStoredTime(oldestDateStr.String); ok {
			stats["oldest_record"] = t
		}
	}
	if newestDateStr.Valid && newestDateStr.String != "" {
		if t, ok := parseStoredTime(newestDateStr.String); ok {
			stats["newest_record"] = t
		}
	}

	return stats, nil
}

// parseStoredTime handles the formats SQLite uses for stored time.Time values
// e.g. "2025-11-19 23:01:56.489344855-05:00"
func parseStoredTime(s string) (time.Time, bool) {
	formats := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
