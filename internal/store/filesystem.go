package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"putplace/internal/pp"
)

// FilesystemStore is a local-disk implementation of the ContentStore
// interface. Content is sharded into a two-level directory structure using
// the first two hex characters of the hash as a subdirectory name, bounding
// directory fanout to 256 buckets:
//
//	<root>/
//	  e3/
//	    e3b0c44298fc1c...   (content files, named by SHA-256)
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a content store rooted at the given path.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

// contentPath returns the sharded path for a hash.
func (s *FilesystemStore) contentPath(sha256 string) string {
	return filepath.Join(s.root, sha256[:2], sha256)
}

// Store writes content under its hash. Storing a hash that already exists
// is an idempotent no-op; content is immutable per hash by construction.
func (s *FilesystemStore) Store(ctx context.Context, sha256 string, r io.Reader, size int64) error {
	destPath := s.contentPath(sha256)

	if _, err := os.Stat(destPath); err == nil {
		// Consume the reader so concurrent callers see consistent behavior.
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}

	return s.writeFile(destPath, r, size)
}

// Retrieve copies the content stored under the hash to w.
func (s *FilesystemStore) Retrieve(ctx context.Context, sha256 string, w io.Writer) error {
	f, err := os.Open(s.contentPath(sha256))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content not found: %s", sha256)
		}
		return fmt.Errorf("failed to open content: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	return nil
}

// Exists reports whether content is stored under the hash.
func (s *FilesystemStore) Exists(ctx context.Context, sha256 string) (bool, error) {
	_, err := os.Stat(s.contentPath(sha256))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes stored content. Returns false without error when nothing
// was stored under the hash.
func (s *FilesystemStore) Delete(ctx context.Context, sha256 string) (bool, error) {
	p := s.contentPath(sha256)

	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete content: %w", err)
	}

	// Prune the shard directory if this was its last entry.
	os.Remove(filepath.Dir(p))

	return true, nil
}

// Location returns the absolute path content for a hash is (or would be)
// stored at.
func (s *FilesystemStore) Location(sha256 string) string {
	abs, err := filepath.Abs(s.contentPath(sha256))
	if err != nil {
		return s.contentPath(sha256)
	}
	return abs
}

// writeFile writes data from r using atomic write (temp file + rename), so
// concurrent stores of the same hash end with the bytes of whichever
// finished, which are identical by hash verification.
func (s *FilesystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write content: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FilesystemStore implements pp.ContentStore
var _ pp.ContentStore = (*FilesystemStore)(nil)
