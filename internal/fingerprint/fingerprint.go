// Package fingerprint computes content digests for duplicate detection.
// Two files are copies of each other exactly when their SHA-256 digests
// match; names, locations, and timestamps play no part in identity.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"dupesweep/internal/limiter"
)

// ChunkSize is the block size used when streaming file content through
// the hash. Files are never loaded into memory whole, so arbitrarily
// large files hash in constant memory.
const ChunkSize = 4096

// Digest is a SHA-256 content fingerprint.
type Digest [sha256.Size]byte

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns an abbreviated hex form for log lines and listings.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}

// UnreadableFileError reports a file that could not be opened or read.
// Callers are expected to skip the file and continue.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}

// Fingerprinter streams file content through SHA-256, optionally pacing
// reads through a shared throttle. A nil throttle means unlimited.
type Fingerprinter struct {
	throttle *limiter.ReadLimiter
}

// New creates a Fingerprinter. Pass a nil throttle to hash at full
// disk speed.
func New(throttle *limiter.ReadLimiter) *Fingerprinter {
	return &Fingerprinter{throttle: throttle}
}

// File computes the SHA-256 digest of the file at path, reading it in
// ChunkSize blocks. Open and read failures are reported as
// *UnreadableFileError so callers can distinguish a skippable file from
// context cancellation, which is returned unwrapped.
func (f *Fingerprinter) File(ctx context.Context, path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, &UnreadableFileError{Path: path, Err: err}
	}
	defer file.Close()

	hash := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return Digest{}, err
		}

		n, err := file.Read(buf)
		if n > 0 {
			if werr := f.throttle.Wait(ctx, n); werr != nil {
				return Digest{}, werr
			}
			hash.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, &UnreadableFileError{Path: path, Err: err}
		}
	}

	var d Digest
	copy(d[:], hash.Sum(nil))
	return d, nil
}
