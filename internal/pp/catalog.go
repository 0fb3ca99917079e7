package pp

import "time"

// Catalog provides durable metadata storage: the monthly observation journal,
// the deduplicated content index, per-host file records, and the path
// registry. All mutating operations are atomic single-statement writes so
// concurrent scanner, processor, and coordinator invocations never lose
// updates to read-modify-write races.
type Catalog interface {
	// Path registry operations

	// AddPath registers a root directory for scanning.
	AddPath(path string, recursive bool) (*RegisteredPath, error)

	// GetPath returns a registered path by id, or nil if absent.
	GetPath(id int64) (*RegisteredPath, error)

	// GetPathByPath returns a registered path with an exact path match, or nil.
	GetPathByPath(path string) (*RegisteredPath, error)

	// ListPaths returns registered paths, optionally only enabled ones.
	ListPaths(enabledOnly bool) ([]*RegisteredPath, error)

	// SetPathEnabled enables or disables a registered path.
	SetPathEnabled(id int64, enabled bool) error

	// TouchPathScanned updates last_scanned_at for a registered path.
	TouchPathScanned(id int64, at time.Time) error

	// DeletePath removes a registered path.
	DeletePath(id int64) error

	// AddExclude registers a system-wide exclusion pattern.
	AddExclude(pattern string) (*Exclude, error)

	// ListExcludes returns all exclusion patterns.
	ListExcludes() ([]*Exclude, error)

	// DeleteExclude removes an exclusion pattern.
	DeleteExclude(id int64) error

	// Journal operations

	// LogObservation journals an observation into the current monthly
	// partition. It returns false without inserting when the newest
	// observation for the same filepath has identical ctime and mtime,
	// which makes rescanning an unchanged tree a no-op.
	LogObservation(obs *Observation) (bool, error)

	// UnprocessedObservations returns up to limit observations that are
	// neither processed nor abandoned, oldest partition first.
	UnprocessedObservations(limit int) ([]*Observation, error)

	// MarkObservationProcessed flips processed on a journal row. The update
	// is conditional on processed = 0.
	MarkObservationProcessed(partition string, id int64) error

	// RecordObservationFailure increments the attempt counter for a journal
	// row and marks it abandoned once the attempt limit is reached.
	RecordObservationFailure(partition string, id int64) error

	// CountUnprocessed returns the number of observations still waiting for
	// checksum processing across all partitions.
	CountUnprocessed() (int64, error)

	// Partition operations

	// ListPartitions returns journal partition table names, oldest first.
	ListPartitions() ([]string, error)

	// DropDrainedPartitions deletes journal partitions in which every row is
	// processed or abandoned. The drained check is re-run inside the drop
	// transaction, and the current month's partition is never dropped.
	// Returns the names of dropped partitions.
	DropDrainedPartitions() ([]string, error)

	// Content index operations

	// UpsertContentRecord inserts a content record if no record exists for
	// its hash. An existing record (the epoch record) is left untouched.
	UpsertContentRecord(rec *ContentRecord) error

	// ContentBySHA256 returns the content record for a hash, or nil.
	ContentBySHA256(sha256 string) (*ContentRecord, error)

	// HasStoredContent reports whether content bytes are durably stored for
	// a hash.
	HasStoredContent(sha256 string) (bool, error)

	// MarkContentStored records that bytes for a hash are durably stored at
	// the given locator. The flag flips at most once; a record is created if
	// the hash was never promoted by the processor.
	MarkContentStored(sha256, location string) error

	// Host file operations

	// InsertHostFile records a per-host file registration. Metadata is
	// always recorded, even for duplicate content.
	InsertHostFile(rec *HostFile) error

	// MarkHostFileUploaded flips has_file_content on the host file matching
	// (sha256, hostname, filepath). The update is conditional on
	// has_file_content = 0 and reports whether any row matched. The storage
	// locator itself lives on the content record (MarkContentStored).
	MarkHostFileUploaded(sha256, hostname, filepath string, at time.Time) (bool, error)

	// ClonesBySHA256 returns all host files sharing a hash, epoch first:
	// records with content ordered by upload time, then metadata-only
	// records ordered by creation time.
	ClonesBySHA256(sha256 string) ([]*HostFile, error)

	// Close closes the catalog.
	Close() error
}
