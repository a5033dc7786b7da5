package retention

import (
	"fmt"
	"log"
	"os"
	"time"

	"dupesweep/internal/fingerprint"
	"dupesweep/internal/scan"
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

// Member is one file of a duplicate group as seen at resolve time
type Member struct {
	Path        string
	Size        int64
	ModTime     time.Time
	Unstattable bool
}

// Decision records which member of a group survives and which are
// slated for deletion
type Decision struct {
	Digest fingerprint.Digest
	Keep   Member
	Delete []Member
}

// GroupSize returns the number of members the decision covers
func (d Decision) GroupSize() int {
	return len(d.Delete) + 1
}

// Resolver picks the survivor of each duplicate group
type Resolver struct {
	logger Logger
}

// NewResolver creates a Resolver. A nil logger falls back to the
// standard library default.
func NewResolver(logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{logger: &stdLogger{Logger: logger}}
}

// Resolve re-stats every member of every group and keeps the one with
// the newest modification time, marking the rest for deletion. Ties
// keep the member encountered first. Groups with fewer than two
// members produce no decision.
func (r *Resolver) Resolve(groups []scan.DuplicateGroup) []Decision {
	decisions := make([]Decision, 0, len(groups))

	for _, group := range groups {
		if len(group.Files) < 2 {
			continue
		}

		members := make([]Member, len(group.Files))
		for i, f := range group.Files {
			members[i] = r.statMember(f)
		}

		keep := 0
		for i := 1; i < len(members); i++ {
			if members[i].ModTime.After(members[keep].ModTime) {
				keep = i
			}
		}

		d := Decision{
			Digest: group.Digest,
			Keep:   members[keep],
			Delete: make([]Member, 0, len(members)-1),
		}
		for i, m := range members {
			if i != keep {
				d.Delete = append(d.Delete, m)
			}
		}

		r.logger.Debug("Retention decided",
			"digest", group.Digest.Short(),
			"keep", d.Keep.Path,
			"delete", len(d.Delete),
		)
		decisions = append(decisions, d)
	}

	return decisions
}

// statMember refreshes size and mtime from the filesystem. A member
// that cannot be statted gets the epoch as its mtime so it loses to
// any statable copy.
func (r *Resolver) statMember(f scan.FileRecord) Member {
	info, err := os.Stat(f.Path)
	if err != nil {
		r.logger.Warn("Cannot stat duplicate, treating as oldest", "path", f.Path, "error", err)
		return Member{
			Path:        f.Path,
			Size:        f.Size,
			ModTime:     time.Unix(0, 0),
			Unstattable: true,
		}
	}
	return Member{
		Path:    f.Path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}
