package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"putplace/internal/catalog"
	"putplace/internal/config"
	"putplace/internal/fs"
	"putplace/internal/pp"
	"putplace/internal/store"
)

// PPApp is the application layer between the CLI and the core pipeline.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the catalog lifecycle on Close.
type PPApp struct {
	cfg       *config.Config
	catalog   pp.Catalog
	store     pp.ContentStore
	fsmgr     pp.FilesystemManager
	service   *pp.Service
	scanner   *pp.Scanner
	processor *pp.Processor
	logFile   *os.File
}

// NewPPApp creates a fully wired PPApp from the given config.
// operation identifies the CLI command being run (e.g. "Scan", "Publish").
// The caller must call Close when done.
func NewPPApp(ctx context.Context, cfg *config.Config, operation string) (*PPApp, error) {
	fsmgr := fs.NewOSFilesystemManager()

	cat, err := catalog.NewCatalogFromConfig(cfg.Database, pp.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("creating catalog: %w", err)
	}

	st, err := store.NewStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("creating content store: %w", err)
	}

	opID := fmt.Sprintf("%s-%s", operation, time.Now().UTC().Format("20060102T150405Z"))
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	logger := &slogAdapter{l: slogger}
	events := pp.LogSink{Logger: logger}
	clock := pp.RealClock{}

	svc := pp.NewService(cat, st, events, logger, clock, pp.UUIDGenerator{})
	scanner := pp.NewScanner(cat, fsmgr, events, logger, clock, cfg.Scanner.Concurrency, cfg.Scanner.Exclude)
	processor := pp.NewProcessor(cat, fsmgr, events, logger, clock, pp.ProcessorOptions{
		ChunkSize:  cfg.Processor.ChunkSize,
		ChunkDelay: time.Duration(cfg.Processor.ChunkDelayMs) * time.Millisecond,
		BatchSize:  cfg.Processor.BatchSize,
		BatchDelay: time.Duration(cfg.Processor.BatchDelaySeconds) * time.Second,
	})

	return &PPApp{
		cfg:       cfg,
		catalog:   cat,
		store:     st,
		fsmgr:     fsmgr,
		service:   svc,
		scanner:   scanner,
		processor: processor,
		logFile:   logFile,
	}, nil
}

// AddPath resolves the given path and registers it for scanning.
func (a *PPApp) AddPath(rawPath string, recursive bool) (*pp.RegisteredPath, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if !p.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", p.String())
	}

	existing, err := a.catalog.GetPathByPath(p.String())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("path already registered: %s", p.String())
	}

	return a.catalog.AddPath(p.String(), recursive)
}

// ListPaths returns all registered paths.
func (a *PPApp) ListPaths() ([]*pp.RegisteredPath, error) {
	return a.catalog.ListPaths(false)
}

// RemovePath unregisters a path by its exact registered form.
func (a *PPApp) RemovePath(rawPath string) error {
	p, err := a.catalog.GetPathByPath(rawPath)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("path not registered: %s", rawPath)
	}
	return a.catalog.DeletePath(p.ID)
}

// AddExclude registers a system-wide exclusion pattern.
func (a *PPApp) AddExclude(pattern string) (*pp.Exclude, error) {
	return a.catalog.AddExclude(pattern)
}

// ListExcludes returns all exclusion patterns.
func (a *PPApp) ListExcludes() ([]*pp.Exclude, error) {
	return a.catalog.ListExcludes()
}

// RemoveExclude deletes an exclusion pattern by id.
func (a *PPApp) RemoveExclude(id int64) error {
	return a.catalog.DeleteExclude(id)
}

// Scan scans one registered path by its exact registered form.
func (a *PPApp) Scan(rawPath string, progress pp.ProgressFunc) (*pp.ScanResult, error) {
	p, err := a.catalog.GetPathByPath(rawPath)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("path not registered: %s", rawPath)
	}

	excludes, err := a.catalog.ListExcludes()
	if err != nil {
		return nil, err
	}
	patterns := append([]string{}, a.cfg.Scanner.Exclude...)
	for _, e := range excludes {
		patterns = append(patterns, e.Pattern)
	}

	return a.scanner.Scan(p.ID, p.Path, p.Recursive, patterns, progress)
}

// ScanAll scans every enabled registered path.
func (a *PPApp) ScanAll(progress pp.ProgressFunc) ([]*pp.ScanResult, error) {
	return a.scanner.ScanAll(progress)
}

// StartProcessor launches the background checksum processor.
func (a *PPApp) StartProcessor() { a.processor.Start() }

// StopProcessor stops the background checksum processor, waiting for the
// in-flight batch to drain.
func (a *PPApp) StopProcessor() { a.processor.Stop() }

// PendingCount returns the number of observations waiting for checksums.
func (a *PPApp) PendingCount() (int64, error) {
	return a.processor.PendingCount()
}

// Stats returns a snapshot of the processor counters.
func (a *PPApp) Stats() pp.ProcessorStats {
	return a.processor.Stats()
}

// Publish hashes the given file at full speed, registers its metadata, and
// uploads the content when no copy is stored yet. The returned result
// reports whether bytes were actually transferred.
func (a *PPApp) Publish(ctx context.Context, rawPath string) (*pp.RegisterResult, *pp.UploadResult, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving path: %w", err)
	}
	if p.IsDir() {
		return nil, nil, fmt.Errorf("not a file: %s", p.String())
	}

	stat, err := a.fsmgr.Stat(p)
	if err != nil {
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}

	f, err := a.fsmgr.Open(p)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	digest, _, err := pp.HashReader(f)
	f.Close()
	if err != nil {
		return nil, nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, nil, fmt.Errorf("determining hostname: %w", err)
	}

	rec := &pp.HostFile{
		Filepath:    p.String(),
		Hostname:    hostname,
		IPAddress:   localIPAddress(),
		SHA256:      digest,
		Ctime:       stat.Ctime,
		Mtime:       stat.Mtime,
		Atime:       stat.Atime,
		FileSize:    stat.Size,
		Permissions: stat.Permissions,
		UID:         stat.UID,
		GID:         stat.GID,
	}

	reg, err := a.service.RegisterMetadata(rec)
	if err != nil {
		return nil, nil, err
	}
	if !reg.UploadRequired {
		return reg, nil, nil
	}

	uf, err := a.fsmgr.Open(p)
	if err != nil {
		return reg, nil, fmt.Errorf("reopening file for upload: %w", err)
	}
	defer uf.Close()

	up, err := a.service.AcceptUpload(ctx, digest, hostname, p.String(), uf)
	if err != nil {
		return reg, nil, err
	}
	return reg, up, nil
}

// Lookup returns the content record for a hash, or nil if unknown.
func (a *PPApp) Lookup(hash string) (*pp.ContentRecord, error) {
	return a.service.LookupByHash(hash)
}

// Clones returns all host files sharing a hash, epoch record first.
func (a *PPApp) Clones(hash string) ([]*pp.HostFile, error) {
	return a.service.ListClones(hash)
}

// Close stops the processor if running and closes all resources.
func (a *PPApp) Close() error {
	a.processor.Stop()

	err := a.catalog.Close()

	if a.logFile != nil {
		a.logFile.Close()
	}

	return err
}

// localIPAddress returns the first non-loopback IPv4 address, or "" if none
// can be determined.
func localIPAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
