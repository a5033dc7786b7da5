package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"dupesweep/internal/database"
	"dupesweep/internal/exitcodes"
)

func main() {
	// Parse command-line flags
	dbPath := flag.String("db", "/var/lib/dupesweep/history.db", "Path to history database")
	recent := flag.Int("recent", 0, "Show N most recent events")
	stats := flag.Bool("stats", false, "Show deletion statistics")
	digest := flag.String("digest", "", "Filter by content digest (hex SHA-256)")
	action := flag.String("action", "", "Filter by action (DELETE, DRY_RUN, SKIP, ERROR, KEEP)")
	pathPattern := flag.String("path", "", "Filter by path pattern (SQL LIKE syntax)")
	largest := flag.Int("largest", 0, "Show N largest deletions")
	days := flag.Int("days", 30, "Number of days for statistics (default: 30)")
	limit := flag.Int("limit", 100, "Maximum rows for action/path queries")
	prune := flag.Int("prune", 0, "Delete events older than N days and compact the database")
	jsonOutput := flag.Bool("json", false, "Output in JSON format")
	flag.Parse()

	// Open database
	db, err := database.NewHistoryDB(*dbPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open database %s: %v", *dbPath, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("ERROR: Failed to close database: %v", err)
		}
	}()

	// Handle different query modes
	switch {
	case *stats:
		showStats(db, *days, *jsonOutput)
	case *recent > 0:
		showRecent(db, *recent, *jsonOutput)
	case *digest != "":
		showByDigest(db, *digest, *jsonOutput)
	case *action != "":
		showByAction(db, *action, *limit, *jsonOutput)
	case *pathPattern != "":
		showByPath(db, *pathPattern, *limit, *jsonOutput)
	case *largest > 0:
		showLargest(db, *largest, *jsonOutput)
	case *prune > 0:
		pruneEvents(db, *prune)
	default:
		flag.Usage()
		fmt.Println("\nExamples:")
		fmt.Println("  dupesweep-query --recent 10             # Show 10 most recent events")
		fmt.Println("  dupesweep-query --stats                 # Show deletion statistics")
		fmt.Println("  dupesweep-query --digest 9f86d08...     # Show the history of one content group")
		fmt.Println("  dupesweep-query --action DELETE         # Show only deletions")
		fmt.Println("  dupesweep-query --path '/srv/media/%'   # Show events under /srv/media")
		fmt.Println("  dupesweep-query --largest 10            # Show 10 largest deletions")
		fmt.Println("  dupesweep-query --prune 90              # Drop events older than 90 days")
		os.Exit(exitcodes.InvalidConfig)
	}
}

func showStats(db *database.HistoryDB, days int, jsonOutput bool) {
	stats, err := db.GetEventStats(days)
	if err != nil {
		log.Fatalf("ERROR: Failed to get statistics: %v", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Deletion Statistics (Last %d days)\n", days)
	fmt.Printf("Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Printf("Files Deleted:     %d\n", stats.TotalDeleted)
	fmt.Printf("Files Skipped:     %d\n", stats.TotalSkipped)
	fmt.Printf("Errors:            %d\n", stats.TotalErrors)
	fmt.Printf("Space Reclaimed:   %s\n", formatBytes(stats.BytesReclaimed))
	fmt.Printf("Duplicate Groups:  %d\n\n", stats.DistinctDigests)

	if len(stats.ByAction) > 0 {
		fmt.Println("By Action:")
		for action, count := range stats.ByAction {
			fmt.Printf("  %-15s %d\n", action, count)
		}
		fmt.Println()
	}

	dbStats, err := db.GetDatabaseStats()
	if err != nil {
		log.Fatalf("ERROR: Failed to get database stats: %v", err)
	}
	fmt.Println("Database:")
	if v, ok := dbStats["total_records"]; ok {
		fmt.Printf("  %-15s %v\n", "records", v)
	}
	if v, ok := dbStats["database_size_bytes"].(int64); ok {
		fmt.Printf("  %-15s %s\n", "size", formatBytes(v))
	}
	if v, ok := dbStats["oldest_record"]; ok {
		fmt.Printf("  %-15s %v\n", "oldest", v)
	}
	if v, ok := dbStats["newest_record"]; ok {
		fmt.Printf("  %-15s %v\n", "newest", v)
	}
}

func showRecent(db *database.HistoryDB, limit int, jsonOutput bool) {
	events, err := db.GetRecentEvents(limit)
	if err != nil {
		log.Fatalf("ERROR: Failed to get recent events: %v", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(events, "", "  ")
		fmt.Println(string(data))
		return
	}

	printEvents(events)
}

func showByDigest(db *database.HistoryDB, digest string, jsonOutput bool) {
	events, err := db.GetEventsByDigest(digest)
	if err != nil {
		log.Fatalf("ERROR: Failed to query by digest: %v", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(events, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Events for digest: %s\n\n", digest)
	printEvents(events)
}

func showByAction(db *database.HistoryDB, action string, limit int, jsonOutput bool) {
	events, err := db.GetEventsByAction(action, limit)
	if err != nil {
		log.Fatalf("ERROR: Failed to query by action: %v", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(events, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Events with action: %s\n\n", action)
	printEvents(events)
}

func showByPath(db *database.HistoryDB, pathPattern string, limit int, jsonOutput bool) {
	events, err := db.GetEventsByPath(pathPattern, limit)
	if err != nil {
		log.Fatalf("ERROR: Failed to query by path: %v", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(events, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Events matching path pattern: %s\n\n", pathPattern)
	printEvents(events)
}

func showLargest(db *database.HistoryDB, limit int, jsonOutput bool) {
	events, err := db.GetLargestDeletions(limit)
	if err != nil {
		log.Fatalf("ERROR: Failed to get largest deletions: %v", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(events, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Largest %d deletions:\n\n", limit)
	printEvents(events)
}

func pruneEvents(db *database.HistoryDB, days int) {
	removed, err := db.DeleteOldEvents(days)
	if err != nil {
		log.Fatalf("ERROR: Failed to prune events: %v", err)
	}
	if err := db.Vacuum(); err != nil {
		log.Fatalf("ERROR: Failed to compact database: %v", err)
	}
	fmt.Printf("Removed %d event(s) older than %d days\n", removed, days)
}

func printEvents(events []database.Event) {
	if len(events) == 0 {
		fmt.Println("No records found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTimestamp\tAction\tDigest\tSize\tPath")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t------\t----\t----")

	for _, ev := range events {
		timestamp := ev.Timestamp.Format("2006-01-02 15:04:05")
		size := formatBytes(ev.Size)
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID, timestamp, ev.Action, shortDigest(ev.Digest), size, ev.Path)
	}
	_ = w.Flush()
}

// shortDigest truncates a hex digest for table output
func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
