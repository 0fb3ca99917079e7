package pp

import "time"

// Observation is one journaled sighting of a file at scan time. Observations
// live in monthly journal partitions and are drained by the checksum
// processor.
type Observation struct {
	ID           int64
	Partition    string // journal partition table holding this row
	Filepath     string // absolute path on the local host
	Ctime        float64
	Mtime        float64
	Atime        float64
	FileSize     int64
	Permissions  uint32
	UID          int64
	GID          int64
	DiscoveredAt time.Time
	Processed    bool
	Attempts     int64
	Abandoned    bool
}

// ContentRecord is one row of the deduplicated content index, keyed by the
// SHA-256 of the content. The first record created for a hash is the epoch
// record; later observations of the same content never replace it.
type ContentRecord struct {
	SHA256          string
	Filepath        string
	Ctime           float64
	Mtime           float64
	Atime           float64
	FileSize        int64
	Permissions     uint32
	UID             int64
	GID             int64
	SourceTable     string // journal partition the record was promoted from
	SourceID        int64  // row id within the source partition
	HasContent      bool
	ContentLocation string
	CreatedAt       time.Time
}

// HostFile records "this host claims to have this content at this path".
// Many host files may share a SHA-256; at most one byte transfer happens
// per hash regardless of how many hosts report it.
type HostFile struct {
	ID             string // UUID
	Filepath       string
	Hostname       string
	IPAddress      string
	SHA256         string
	Ctime          float64
	Mtime          float64
	Atime          float64
	FileSize       int64
	Permissions    uint32
	UID            int64
	GID            int64
	HasFileContent bool
	FileUploadedAt *time.Time
	UploadedBy     string
	CreatedAt      time.Time
}

// RegisteredPath is a root directory enrolled for scanning.
type RegisteredPath struct {
	ID            int64
	Path          string
	Recursive     bool
	Enabled       bool
	LastScannedAt *time.Time
	CreatedAt     time.Time
}

// Exclude is a system-wide exclusion pattern applied to every scan.
type Exclude struct {
	ID        int64
	Pattern   string
	CreatedAt time.Time
}
