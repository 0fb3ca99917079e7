package pp

import (
	"context"
	"io"
)

// ContentStore provides content-addressed byte storage keyed by SHA-256.
// All operations use io.Reader/io.Writer for streaming to support large
// files without loading them entirely into memory.
type ContentStore interface {
	// Store writes content under its hash. The operation is idempotent:
	// storing the same hash multiple times is safe, including concurrently,
	// because content is immutable per hash by construction.
	// size is the number of bytes that will be read from r.
	Store(ctx context.Context, sha256 string, r io.Reader, size int64) error

	// Retrieve copies the content stored under the hash to w.
	Retrieve(ctx context.Context, sha256 string, w io.Writer) error

	// Exists reports whether content is stored under the hash.
	Exists(ctx context.Context, sha256 string) (bool, error)

	// Delete removes the content stored under the hash. It returns false
	// without error when nothing was stored.
	Delete(ctx context.Context, sha256 string) (bool, error)

	// Location returns the opaque storage locator for a hash, for example
	// an absolute file path or an s3:// URI.
	Location(sha256 string) string
}
