package pp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"time"

	"golang.org/x/time/rate"
)

var sha256HexRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidSHA256 reports whether s is a 64-character lowercase hex SHA-256.
func ValidSHA256(s string) bool { return sha256HexRe.MatchString(s) }

// HashReader computes the SHA-256 of everything readable from r at full
// speed. Returns the lowercase hex digest and the number of bytes read.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ChunkedHasher computes SHA-256 digests in fixed-size chunks with a
// configurable delay between chunks. The delay is a throttle, not a timeout:
// it keeps the checksum processor from saturating disk and CPU on large
// files. Waiting is done through a rate limiter so the caller's context can
// cancel mid-file.
type ChunkedHasher struct {
	chunkSize int
	limiter   *rate.Limiter
}

// NewChunkedHasher creates a hasher reading chunkSize bytes at a time and
// pausing chunkDelay between chunks. A zero or negative delay disables the
// throttle.
func NewChunkedHasher(chunkSize int, chunkDelay time.Duration) *ChunkedHasher {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	var limiter *rate.Limiter
	if chunkDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(chunkDelay), 1)
	}
	return &ChunkedHasher{chunkSize: chunkSize, limiter: limiter}
}

// Sum reads r to EOF and returns the lowercase hex SHA-256 digest.
func (h *ChunkedHasher) Sum(ctx context.Context, r io.Reader) (string, error) {
	digest := sha256.New()
	buf := make([]byte, h.chunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
			if h.limiter != nil {
				if werr := h.limiter.Wait(ctx); werr != nil {
					return "", werr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading chunk: %w", err)
		}
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
