package database

import (
	"database/sql"
	"time"
)

const eventColumns = `id, timestamp, action, path, file_name, size,
       digest, group_size, kept_path, mod_time, error_message`

// GetRecentEvents returns the N most recent cleanup events
func (d *HistoryDB) GetRecentEvents(limit int) ([]Event, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM events
	ORDER BY timestamp DESC
	LIMIT ?
	`

	return d.queryEvents(query, limit)
}

// GetEventsByAction returns events filtered by action type
func (d *HistoryDB) GetEventsByAction(action string, limit int) ([]Event, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM events
	WHERE action = ?
	ORDER BY timestamp DESC
	LIMIT ?
	`

	return d.queryEvents(query, action, limit)
}

// GetEventsByDigest returns the full history of one content digest
func (d *HistoryDB) GetEventsByDigest(digest string) ([]Event, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM events
	WHERE digest = ?
	ORDER BY timestamp DESC
	`

	return d.queryEvents(query, digest)
}

// GetEventsByPath returns events matching a path pattern
func (d *HistoryDB) GetEventsByPath(pathPattern string, limit int) ([]Event, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM events
	WHERE path LIKE ?
	ORDER BY timestamp DESC
	LIMIT ?
	`

	return d.queryEvents(query, pathPattern, limit)
}

// GetLargestDeletions returns the N largest deleted duplicates by size
func (d *HistoryDB) GetLargestDeletions(limit int) ([]Event, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM events
	WHERE action = 'DELETE'
	ORDER BY size DESC
	LIMIT ?
	`

	return d.queryEvents(query, limit)
}

// GetTotalBytesReclaimed returns total bytes reclaimed in a time range
func (d *HistoryDB) GetTotalBytesReclaimed(start, end time.Time) (int64, error) {
	query := `
	SELECT COALESCE(SUM(size), 0)
	FROM events
	WHERE action = 'DELETE' AND timestamp BETWEEN ? AND ?
	`

	var total int64
	err := d.db.QueryRow(query, start, end).Scan(&total)
	return total, err
}

// GetEventCountByAction returns count of events grouped by action
func (d *HistoryDB) GetEventCountByAction() (map[string]int, error) {
	query := `
	SELECT action, COUNT(*)
	FROM events
	GROUP BY action
	`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}

	return counts, rows.Err()
}

// EventStats holds aggregated statistics
type EventStats struct {
	TotalDeleted    int
	TotalSkipped    int
	TotalErrors     int
	BytesReclaimed  int64
	DistinctDigests int // duplicate groups that lost at least one member
	ByAction        map[string]int
	StartDate       time.Time
	EndDate         time.Time
}

// GetEventStats returns comprehensive statistics for a time period
func (d *HistoryDB) GetEventStats(days int) (*EventStats, error) {
	since := time.Now().AddDate(0, 0, -days)
	now := time.Now()

	stats := &EventStats{
		StartDate: since,
		EndDate:   now,
	}

	// Total by action
	err := d.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN action = 'DELETE' THEN 1 END),
			COUNT(CASE WHEN action = 'SKIP' THEN 1 END),
			COUNT(CASE WHEN action = 'ERROR' THEN 1 END)
		FROM events
		WHERE timestamp >= ?
	`, since).Scan(&stats.TotalDeleted, &stats.TotalSkipped, &stats.TotalErrors)
	if err != nil {
		return nil, err
	}

	// Distinct groups that actually shrank
	err = d.db.QueryRow(`
		SELECT COUNT(DISTINCT digest)
		FROM events
		WHERE action = 'DELETE' AND timestamp >= ?
	`, since).Scan(&stats.DistinctDigests)
	if err != nil {
		return nil, err
	}

	// Total bytes reclaimed
	stats.BytesReclaimed, err = d.GetTotalBytesReclaimed(since, now)
	if err != nil {
		return nil, err
	}

	// Count by action
	stats.ByAction, err = d.GetEventCountByAction()
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteOldEvents removes records older than specified days (for pruning)
func (d *HistoryDB) DeleteOldEvents(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`
		DELETE FROM events WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// queryEvents is a helper function to execute queries and scan results
func (d *HistoryDB) queryEvents(query string, args ...interface{}) ([]Event, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var fileName, keptPath, errMsg sql.NullString
		var modTime sql.NullTime

		err := rows.Scan(
			&ev.ID, &ev.Timestamp, &ev.Action, &ev.Path, &fileName,
			&ev.Size, &ev.Digest, &ev.GroupSize, &keptPath,
			&modTime, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		if fileName.Valid {
			ev.FileName = fileName.String
		}
		if keptPath.Valid {
			ev.KeptPath = keptPath.String
		}
		if modTime.Valid {
			mt := modTime.Time
			ev.ModTime = &mt
		}
		if errMsg.Valid {
			ev.ErrorMessage = errMsg.String
		}

		events = append(events, ev)
	}

	return events, rows.Err()
}
