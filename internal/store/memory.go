package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"putplace/internal/pp"
)

// MemoryStore is an in-memory implementation of the ContentStore interface,
// useful for testing. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	content map[string][]byte
}

// NewMemoryStore creates a new in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[string][]byte)}
}

// Store writes content under its hash. Repeated stores of the same hash are
// idempotent.
func (m *MemoryStore) Store(ctx context.Context, sha256 string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[sha256] = data
	return nil
}

// Retrieve copies the content stored under the hash to w.
func (m *MemoryStore) Retrieve(ctx context.Context, sha256 string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[sha256]
	if !ok {
		return fmt.Errorf("content not found: %s", sha256)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Exists reports whether content is stored under the hash.
func (m *MemoryStore) Exists(ctx context.Context, sha256 string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[sha256]
	return ok, nil
}

// Delete removes stored content, reporting whether anything was removed.
func (m *MemoryStore) Delete(ctx context.Context, sha256 string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.content[sha256]; !ok {
		return false, nil
	}
	delete(m.content, sha256)
	return true, nil
}

// Location returns an opaque in-memory locator for a hash.
func (m *MemoryStore) Location(sha256 string) string {
	return "memory://" + sha256[:2] + "/" + sha256
}

// Compile-time check that MemoryStore implements pp.ContentStore
var _ pp.ContentStore = (*MemoryStore)(nil)
