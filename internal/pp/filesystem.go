package pp

import "io"

// FileStat carries the stat fields journaled for an observation. Timestamps
// are float Unix seconds so change detection compares exactly what the
// journal stores.
type FileStat struct {
	Size        int64
	Permissions uint32
	UID         int64
	GID         int64
	Mtime       float64
	Atime       float64
	Ctime       float64
}

// ScanError is a per-file failure collected during a scan. Expected failure
// modes are aggregated into results, never raised as errors.
type ScanError struct {
	Path    string
	Message string
}

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real
// filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object. It resolves
	// the path to an absolute path, stats it, and validates it's a regular
	// file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)

	// Stat returns fresh stat data for a path, including ownership and the
	// full timestamp set.
	Stat(path *Path) (*FileStat, error)

	// FindFiles discovers regular files under a directory. Per-file walk
	// errors are collected and returned alongside the paths; a single
	// unreadable entry never aborts discovery.
	FindFiles(path *Path, recursive bool) ([]*Path, []ScanError)
}

// Path represents a validated filesystem path.
// Path objects are created by FilesystemManager.Resolve() which validates
// the path exists and resolves it to an absolute path.
type Path struct {
	absPath string
	isDir   bool
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, isDir bool) *Path {
	return &Path{absPath: absPath, isDir: isDir}
}

// String returns the absolute path as a string.
func (p *Path) String() string { return p.absPath }

// IsDir returns true if this path points to a directory.
func (p *Path) IsDir() bool { return p.isDir }
