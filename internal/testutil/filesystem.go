package testutil

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"putplace/internal/pp"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions uint32
	UID         int64
	GID         int64
	Ctime       float64
	Mtime       float64
	Atime       float64
	IsDirectory bool
	OpenErr     error // returned by Open when set
}

// MockFilesystemManager is an in-memory filesystem for testing.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file to the mock filesystem, creating parent directories.
func (m *MockFilesystemManager) AddFile(path string, content []byte) *MockFile {
	now := float64(time.Now().Unix())
	f := &MockFile{
		Content:     content,
		Permissions: 0644,
		UID:         1000,
		GID:         1000,
		Ctime:       now,
		Mtime:       now,
		Atime:       now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = f
	for dir := filepath.Dir(path); dir != "/" && dir != "."; dir = filepath.Dir(dir) {
		if _, ok := m.files[dir]; !ok {
			m.files[dir] = &MockFile{Permissions: 0755, IsDirectory: true}
		}
	}
	return f
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{Permissions: 0755, IsDirectory: true}
}

// RemoveFile deletes a file, simulating a file that vanished between scan
// and checksum.
func (m *MockFilesystemManager) RemoveFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// Touch bumps a file's ctime and mtime by one second.
func (m *MockFilesystemManager) Touch(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[path]; ok {
		f.Ctime++
		f.Mtime++
	}
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*pp.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}

	return pp.NewPath(absPath, file.IsDirectory), nil
}

func (m *MockFilesystemManager) Open(path *pp.Path) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	if file.OpenErr != nil {
		return nil, file.OpenErr
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path *pp.Path) (*pp.FileStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}

	return &pp.FileStat{
		Size:        int64(len(file.Content)),
		Permissions: file.Permissions,
		UID:         file.UID,
		GID:         file.GID,
		Ctime:       file.Ctime,
		Mtime:       file.Mtime,
		Atime:       file.Atime,
	}, nil
}

func (m *MockFilesystemManager) FindFiles(path *pp.Path, recursive bool) ([]*pp.Path, []pp.ScanError) {
	if !path.IsDir() {
		return nil, []pp.ScanError{{Path: path.String(), Message: "not a directory"}}
	}

	root := path.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for p, f := range m.files {
		if f.IsDirectory || !strings.HasPrefix(p, root+string(filepath.Separator)) {
			continue
		}
		if !recursive {
			rel, err := filepath.Rel(root, p)
			if err != nil || strings.Contains(rel, string(filepath.Separator)) {
				continue
			}
		}
		names = append(names, p)
	}
	sort.Strings(names)

	var paths []*pp.Path
	for _, p := range names {
		paths = append(paths, pp.NewPath(p, false))
	}
	return paths, nil
}

// Compile-time check
var _ pp.FilesystemManager = (*MockFilesystemManager)(nil)
