package disk

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// Usage describes the capacity of the filesystem that holds a path.
type Usage struct {
	FreeBytes  int64
	TotalBytes int64
}

// UsedPercent returns the percentage of the filesystem in use.
func (u Usage) UsedPercent() float64 {
	if u.TotalBytes <= 0 {
		return 0
	}
	used := u.TotalBytes - u.FreeBytes
	return (float64(used) / float64(u.TotalBytes)) * 100.0
}

// FreePercent returns the percentage of the filesystem still free.
func (u Usage) FreePercent() float64 {
	if u.TotalBytes <= 0 {
		return 0
	}
	return (float64(u.FreeBytes) / float64(u.TotalBytes)) * 100.0
}

// Stat returns capacity information for the filesystem containing path.
func Stat(path string) (Usage, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return Usage{}, err
	}
	return Usage{
		FreeBytes:  int64(st.Bavail) * int64(st.Bsize),
		TotalBytes: int64(st.Blocks) * int64(st.Bsize),
	}, nil
}

// IsNFSStale checks if a path is on a stale NFS mount by attempting a quick
// stat with timeout. Returns true if the stat times out or fails with
// NFS-specific errors.
func IsNFSStale(path string, timeout time.Duration) bool {
	done := make(chan bool, 1)
	var err error

	go func() {
		_, err = os.Stat(path)
		done <- true
	}()

	select {
	case <-done:
		if err != nil {
			// Common NFS errors: EIO, ESTALE, ENXIO
			if os.IsTimeout(err) ||
				errors.Is(err, syscall.EIO) ||
				errors.Is(err, syscall.ESTALE) ||
				errors.Is(err, syscall.ENXIO) {
				return true
			}
		}
		return false
	case <-time.After(timeout):
		// Timed out, likely a stale NFS mount
		return true
	}
}
