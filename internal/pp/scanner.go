package pp

import (
	"fmt"
	"path/filepath"
	"sync"
)

// DefaultScanConcurrency bounds in-flight file stat operations per scan.
const DefaultScanConcurrency = 8

// ScanResult holds the statistics of one directory scan. Per-file failures
// are collected here rather than aborting the scan.
type ScanResult struct {
	PathID  int64
	Path    string
	Total   int
	Logged  int
	Skipped int
	Errors  []ScanError
}

// ScanProgress is delivered to the progress callback after every completed
// file. Completion order is not discovery order: stat operations run
// concurrently and finish in whatever order the filesystem serves them.
type ScanProgress struct {
	PathID      int64
	Path        string
	Total       int
	Scanned     int
	Logged      int
	Skipped     int
	Errors      int
	CurrentFile string
}

// ProgressFunc receives scan progress updates.
type ProgressFunc func(ScanProgress)

// Scanner walks registered directories and journals per-file observations
// into the catalog. It collects stat metadata only; checksums are computed
// later by the Processor.
type Scanner struct {
	catalog      Catalog
	fsmgr        FilesystemManager
	events       EventSink
	logger       Logger
	clock        Clock
	concurrency  int
	baseExcludes []string
}

// NewScanner creates a Scanner. baseExcludes are exclusion patterns applied
// to every scan in addition to the catalog's system-wide patterns.
func NewScanner(catalog Catalog, fsmgr FilesystemManager, events EventSink, logger Logger, clock Clock, concurrency int, baseExcludes []string) *Scanner {
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}
	return &Scanner{
		catalog:      catalog,
		fsmgr:        fsmgr,
		events:       events,
		logger:       logger,
		clock:        clock,
		concurrency:  concurrency,
		baseExcludes: baseExcludes,
	}
}

// fileOutcome is the per-file result consumed in completion order.
type fileOutcome struct {
	path   string
	logged bool
	errMsg string
}

// Scan walks root and journals an observation for every non-excluded file
// whose ctime or mtime changed since its last observation. A nonexistent or
// non-directory root yields a zero-file result, not an error; per-file stat
// failures are recorded in the result and never abort the scan.
func (s *Scanner) Scan(pathID int64, root string, recursive bool, excludes []string, progress ProgressFunc) (*ScanResult, error) {
	result := &ScanResult{PathID: pathID, Path: root}

	s.events.Emit(Event{
		Type:    EventScanStarted,
		Time:    s.clock.Now(),
		PathID:  pathID,
		Message: fmt.Sprintf("started scanning %s", root),
		Details: map[string]any{"recursive": recursive},
	})

	rootPath, err := s.fsmgr.Resolve(root)
	if err != nil || !rootPath.IsDir() {
		s.logger.Warn("scan root unavailable", "path", root, "err", err)
		s.events.Emit(Event{
			Type:    EventError,
			Time:    s.clock.Now(),
			PathID:  pathID,
			Message: fmt.Sprintf("scan root unavailable: %s", root),
		})
		s.finishScan(pathID, result)
		return result, nil
	}

	files, walkErrs := s.fsmgr.FindFiles(rootPath, recursive)
	result.Errors = append(result.Errors, walkErrs...)

	matcher := NewExcludeMatcher(excludes)
	candidates := files[:0]
	for _, f := range files {
		rel, relErr := filepath.Rel(rootPath.String(), f.String())
		if relErr != nil {
			continue
		}
		if matcher.Match(rel) {
			s.logger.Debug("excluded", "path", f.String())
			continue
		}
		candidates = append(candidates, f)
	}

	result.Total = len(candidates)
	s.logger.Info("scan collected files", "path", root, "count", result.Total)

	prog := ScanProgress{
		PathID: pathID,
		Path:   root,
		Total:  result.Total,
		Errors: len(result.Errors),
	}
	if progress != nil {
		progress(prog)
	}

	// Bounded fan-out: at most s.concurrency stat+journal operations are in
	// flight; outcomes are consumed in completion order.
	sem := make(chan struct{}, s.concurrency)
	outcomes := make(chan fileOutcome)
	var wg sync.WaitGroup

	for _, f := range candidates {
		wg.Add(1)
		go func(f *Path) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes <- s.processFile(pathID, f)
		}(f)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		prog.Scanned++
		prog.CurrentFile = o.path
		switch {
		case o.errMsg != "":
			result.Errors = append(result.Errors, ScanError{Path: o.path, Message: o.errMsg})
			prog.Errors++
		case o.logged:
			result.Logged++
			prog.Logged++
		default:
			result.Skipped++
			prog.Skipped++
		}
		if progress != nil {
			progress(prog)
		}
	}

	s.finishScan(pathID, result)
	return result, nil
}

// processFile stats one file and journals it when changed.
func (s *Scanner) processFile(pathID int64, f *Path) fileOutcome {
	stat, err := s.fsmgr.Stat(f)
	if err != nil {
		s.logger.Warn("cannot stat file", "path", f.String(), "err", err)
		return fileOutcome{path: f.String(), errMsg: err.Error()}
	}

	logged, err := s.catalog.LogObservation(&Observation{
		Filepath:    f.String(),
		Ctime:       stat.Ctime,
		Mtime:       stat.Mtime,
		Atime:       stat.Atime,
		FileSize:    stat.Size,
		Permissions: stat.Permissions,
		UID:         stat.UID,
		GID:         stat.GID,
	})
	if err != nil {
		s.logger.Error("journal write failed", "path", f.String(), "err", err)
		return fileOutcome{path: f.String(), errMsg: err.Error()}
	}

	if logged {
		s.events.Emit(Event{
			Type:     EventFileDiscovered,
			Time:     s.clock.Now(),
			PathID:   pathID,
			Filepath: f.String(),
			Message:  fmt.Sprintf("file logged: %s", filepath.Base(f.String())),
			Details:  map[string]any{"size": stat.Size},
		})
	}

	return fileOutcome{path: f.String(), logged: logged}
}

// finishScan touches last_scanned_at and emits the completion event.
func (s *Scanner) finishScan(pathID int64, result *ScanResult) {
	if pathID != 0 {
		if err := s.catalog.TouchPathScanned(pathID, s.clock.Now()); err != nil {
			s.logger.Warn("updating last_scanned_at failed", "path_id", pathID, "err", err)
		}
	}

	s.events.Emit(Event{
		Type:    EventScanComplete,
		Time:    s.clock.Now(),
		PathID:  pathID,
		Message: fmt.Sprintf("completed scanning %s", result.Path),
		Details: map[string]any{
			"total":   result.Total,
			"logged":  result.Logged,
			"skipped": result.Skipped,
			"errors":  len(result.Errors),
		},
	})
}

// ScanAll scans every enabled registered path with the system-wide exclusion
// patterns. Roots that are missing or not directories are skipped with an
// error event.
func (s *Scanner) ScanAll(progress ProgressFunc) ([]*ScanResult, error) {
	paths, err := s.catalog.ListPaths(true)
	if err != nil {
		return nil, fmt.Errorf("listing registered paths: %w", err)
	}

	excludes, err := s.catalog.ListExcludes()
	if err != nil {
		return nil, fmt.Errorf("listing excludes: %w", err)
	}
	patterns := append([]string{}, s.baseExcludes...)
	for _, e := range excludes {
		patterns = append(patterns, e.Pattern)
	}

	var results []*ScanResult
	for _, p := range paths {
		rp, rerr := s.fsmgr.Resolve(p.Path)
		if rerr != nil || !rp.IsDir() {
			s.logger.Warn("registered path unavailable", "path", p.Path, "err", rerr)
			s.events.Emit(Event{
				Type:    EventError,
				Time:    s.clock.Now(),
				PathID:  p.ID,
				Message: fmt.Sprintf("registered path unavailable: %s", p.Path),
			})
			continue
		}

		result, serr := s.Scan(p.ID, p.Path, p.Recursive, patterns, progress)
		if serr != nil {
			return results, serr
		}
		results = append(results, result)
	}

	return results, nil
}
