package pp

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// ProcessorStats is a point-in-time snapshot of the processor's ephemeral
// counters. Counters reset on a daily boundary and are not persisted.
type ProcessorStats struct {
	Running        bool
	ProcessedToday int64
	FailedToday    int64
	CurrentFile    string
}

// ProcessorOptions configures the checksum processor.
type ProcessorOptions struct {
	ChunkSize  int           // bytes hashed per read
	ChunkDelay time.Duration // throttle between chunk reads
	BatchSize  int           // observations fetched per loop iteration
	BatchDelay time.Duration // pause between batches
}

const (
	defaultBatchSize  = 100
	defaultBatchDelay = time.Second
	errorRetryDelay   = 5 * time.Second
)

// Processor is the background checksum calculator. It drains unprocessed
// observations from the journal, computes rate-limited SHA-256 digests, and
// promotes entries into the content index. The loop runs until Stop is
// called; unexpected errors are logged and retried, never fatal.
type Processor struct {
	catalog Catalog
	fsmgr   FilesystemManager
	events  EventSink
	logger  Logger
	clock   Clock
	hasher  *ChunkedHasher

	batchSize  int
	batchDelay time.Duration
	idleDelay  time.Duration

	mu             sync.Mutex
	running        bool
	cancel         context.CancelFunc
	done           chan struct{}
	processedToday int64
	failedToday    int64
	currentFile    string
	statsDay       time.Time
}

// NewProcessor creates a Processor. Zero option fields fall back to
// defaults.
func NewProcessor(catalog Catalog, fsmgr FilesystemManager, events EventSink, logger Logger, clock Clock, opts ProcessorOptions) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = defaultBatchDelay
	}
	return &Processor{
		catalog:    catalog,
		fsmgr:      fsmgr,
		events:     events,
		logger:     logger,
		clock:      clock,
		hasher:     NewChunkedHasher(opts.ChunkSize, opts.ChunkDelay),
		batchSize:  opts.BatchSize,
		batchDelay: opts.BatchDelay,
		idleDelay:  opts.BatchDelay * 5,
	}
}

// Start launches the background loop. Starting an already running processor
// is a no-op.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn("checksum processor already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.statsDay = p.clock.Now().UTC().Truncate(24 * time.Hour)

	go p.loop(ctx)
	p.logger.Info("checksum processor started")
}

// Stop cancels the loop and waits for the in-flight iteration to drain
// before returning. Stopping a stopped processor is a no-op.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	p.logger.Info("checksum processor stopped")
}

// PendingCount returns the number of observations waiting for processing.
func (p *Processor) PendingCount() (int64, error) {
	return p.catalog.CountUnprocessed()
}

// Stats returns a snapshot of the processor's counters.
func (p *Processor) Stats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProcessorStats{
		Running:        p.running,
		ProcessedToday: p.processedToday,
		FailedToday:    p.failedToday,
		CurrentFile:    p.currentFile,
	}
}

// loop is the main processing loop. It only exits via context cancellation.
func (p *Processor) loop(ctx context.Context) {
	defer close(p.done)

	for {
		if ctx.Err() != nil {
			return
		}

		entries, err := p.catalog.UnprocessedObservations(p.batchSize)
		if err != nil {
			p.logger.Error("fetching unprocessed observations failed", "err", err)
			if !sleepCtx(ctx, errorRetryDelay) {
				return
			}
			continue
		}

		if len(entries) == 0 {
			if !sleepCtx(ctx, p.idleDelay) {
				return
			}
			continue
		}

		p.logger.Debug("processing batch", "count", len(entries))
		for _, entry := range entries {
			if ctx.Err() != nil {
				return
			}
			p.processEntry(ctx, entry)
		}

		p.cleanupPartitions()

		if !sleepCtx(ctx, p.batchDelay) {
			return
		}
	}
}

// processEntry hashes one observation and promotes it into the content
// index. Per-file errors are terminal for this attempt: the row stays in the
// journal until a later attempt succeeds or it is abandoned.
func (p *Processor) processEntry(ctx context.Context, entry *Observation) {
	p.rollStatsDay()
	p.setCurrentFile(entry.Filepath)
	defer p.setCurrentFile("")

	path, err := p.fsmgr.Resolve(entry.Filepath)
	if err != nil || path.IsDir() {
		p.logger.Warn("file no longer readable, deferring", "path", entry.Filepath, "err", err)
		p.recordFailure(entry, "file not readable")
		return
	}

	f, err := p.fsmgr.Open(path)
	if err != nil {
		p.logger.Warn("cannot open file", "path", entry.Filepath, "err", err)
		p.recordFailure(entry, err.Error())
		return
	}
	defer f.Close()

	digest, err := p.hasher.Sum(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			return // cancelled mid-file; the row stays unprocessed
		}
		p.logger.Warn("checksum failed", "path", entry.Filepath, "err", err)
		p.recordFailure(entry, err.Error())
		return
	}

	rec := &ContentRecord{
		SHA256:      digest,
		Filepath:    entry.Filepath,
		Ctime:       entry.Ctime,
		Mtime:       entry.Mtime,
		Atime:       entry.Atime,
		FileSize:    entry.FileSize,
		Permissions: entry.Permissions,
		UID:         entry.UID,
		GID:         entry.GID,
		SourceTable: entry.Partition,
		SourceID:    entry.ID,
	}
	if err := p.catalog.UpsertContentRecord(rec); err != nil {
		p.logger.Error("promoting content record failed", "path", entry.Filepath, "err", err)
		p.recordFailure(entry, err.Error())
		return
	}

	if err := p.catalog.MarkObservationProcessed(entry.Partition, entry.ID); err != nil {
		p.logger.Error("marking observation processed failed", "path", entry.Filepath, "err", err)
		return
	}

	p.mu.Lock()
	p.processedToday++
	p.mu.Unlock()

	p.events.Emit(Event{
		Type:     EventChecksumComplete,
		Time:     p.clock.Now(),
		Filepath: entry.Filepath,
		Message:  fmt.Sprintf("checksum calculated: %s", filepath.Base(entry.Filepath)),
		Details:  map[string]any{"sha256": digest[:16] + "..."},
	})
}

// recordFailure bumps the observation's attempt counter and the daily
// failure counter, emitting a failure event.
func (p *Processor) recordFailure(entry *Observation, reason string) {
	if err := p.catalog.RecordObservationFailure(entry.Partition, entry.ID); err != nil {
		p.logger.Error("recording observation failure failed", "path", entry.Filepath, "err", err)
	}

	p.mu.Lock()
	p.failedToday++
	p.mu.Unlock()

	p.events.Emit(Event{
		Type:     EventChecksumFailed,
		Time:     p.clock.Now(),
		Filepath: entry.Filepath,
		Message:  fmt.Sprintf("checksum failed: %s", filepath.Base(entry.Filepath)),
		Details:  map[string]any{"reason": reason},
	})
}

// cleanupPartitions drops journal partitions that are fully drained.
func (p *Processor) cleanupPartitions() {
	dropped, err := p.catalog.DropDrainedPartitions()
	if err != nil {
		p.logger.Error("partition cleanup failed", "err", err)
		return
	}

	for _, name := range dropped {
		p.events.Emit(Event{
			Type:    EventPartitionDropped,
			Time:    p.clock.Now(),
			Message: fmt.Sprintf("dropped drained partition: %s", name),
			Details: map[string]any{"partition": name},
		})
	}
}

// rollStatsDay resets the daily counters when the UTC day changes.
func (p *Processor) rollStatsDay() {
	day := p.clock.Now().UTC().Truncate(24 * time.Hour)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !day.Equal(p.statsDay) {
		p.statsDay = day
		p.processedToday = 0
		p.failedToday = 0
	}
}

func (p *Processor) setCurrentFile(path string) {
	p.mu.Lock()
	p.currentFile = path
	p.mu.Unlock()
}

// sleepCtx sleeps for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
