package limiter

import (
	"context"

	"golang.org/x/time/rate"
)

// ReadLimiter caps aggregate read bandwidth across all hashing workers.
// A full-tree fingerprint pass reads every byte under the root, so on
// shared hosts the scan is throttled to keep disk I/O available for
// other consumers.
type ReadLimiter struct {
	bucket *rate.Limiter
}

// NewReadLimiter creates a limiter that admits at most mbPerSec
// mebibytes of reads per second, with a one-second burst. A rate of
// zero or less returns nil; all methods treat a nil receiver as
// unlimited.
func NewReadLimiter(mbPerSec int) *ReadLimiter {
	if mbPerSec <= 0 {
		return nil
	}
	bytesPerSec := mbPerSec * 1024 * 1024
	return &ReadLimiter{
		bucket: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec),
	}
}

// Wait blocks until n bytes of read budget are available or ctx is
// canceled. Requests larger than the burst are clamped so a single
// oversized read cannot deadlock the bucket.
func (rl *ReadLimiter) Wait(ctx context.Context, n int) error {
	if rl == nil {
		return nil
	}
	if n > rl.bucket.Burst() {
		n = rl.bucket.Burst()
	}
	return rl.bucket.WaitN(ctx, n)
}

// BytesPerSecond reports the configured rate, 0 when unlimited.
func (rl *ReadLimiter) BytesPerSecond() float64 {
	if rl == nil {
		return 0
	}
	return float64(rl.bucket.Limit())
}
