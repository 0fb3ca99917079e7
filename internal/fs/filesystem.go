package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"putplace/internal/pp"
)

// OSFilesystemManager is the real filesystem implementation of
// FilesystemManager. It performs actual filesystem operations using the os
// package.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on
// the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*pp.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	// Reject special file types the pipeline doesn't handle.
	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return pp.NewPath(absPath, info.IsDir()), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *pp.Path) (io.ReadCloser, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

// Stat returns fresh stat data for a path.
func (m *OSFilesystemManager) Stat(path *pp.Path) (*pp.FileStat, error) {
	info, err := os.Stat(path.String())
	if err != nil {
		return nil, err
	}
	return extractStat(info)
}

// FindFiles discovers regular files under the given directory path. Walk
// errors on individual entries are collected, not fatal.
func (m *OSFilesystemManager) FindFiles(path *pp.Path, recursive bool) ([]*pp.Path, []pp.ScanError) {
	if !path.IsDir() {
		return nil, []pp.ScanError{{Path: path.String(), Message: "not a directory"}}
	}

	var paths []*pp.Path
	var errs []pp.ScanError

	if recursive {
		walkErr := filepath.WalkDir(path.String(), func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				errs = append(errs, pp.ScanError{Path: p, Message: err.Error()})
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			paths = append(paths, pp.NewPath(p, false))
			return nil
		})
		if walkErr != nil {
			errs = append(errs, pp.ScanError{Path: path.String(), Message: walkErr.Error()})
		}
		return paths, errs
	}

	entries, err := os.ReadDir(path.String())
	if err != nil {
		return nil, []pp.ScanError{{Path: path.String(), Message: err.Error()}}
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		paths = append(paths, pp.NewPath(filepath.Join(path.String(), entry.Name()), false))
	}
	return paths, errs
}

// Compile-time check that OSFilesystemManager implements pp.FilesystemManager
var _ pp.FilesystemManager = (*OSFilesystemManager)(nil)
