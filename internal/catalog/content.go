package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"putplace/internal/pp"
)

// UpsertContentRecord inserts a content record unless one already exists for
// the hash. The first record written for a hash is the epoch record and is
// never replaced.
func (c *SQLiteCatalog) UpsertContentRecord(rec *pp.ContentRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = c.clock.Now().UTC()
	}

	_, err := c.db.Exec(
		`INSERT INTO content_index
		 (sha256, filepath, ctime, mtime, atime, file_size, permissions, uid, gid,
		  source_table, source_id, has_content, content_location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sha256) DO NOTHING`,
		rec.SHA256, rec.Filepath, rec.Ctime, rec.Mtime, rec.Atime, rec.FileSize,
		rec.Permissions, rec.UID, rec.GID, rec.SourceTable, rec.SourceID,
		rec.HasContent, rec.ContentLocation, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting content record: %w", err)
	}
	return nil
}

// ContentBySHA256 returns the content record for a hash, or nil if the hash
// has never been seen.
func (c *SQLiteCatalog) ContentBySHA256(sha256 string) (*pp.ContentRecord, error) {
	rec := &pp.ContentRecord{}
	var location sql.NullString
	err := c.db.QueryRow(
		`SELECT sha256, filepath, ctime, mtime, atime, file_size, permissions, uid, gid,
		        source_table, source_id, has_content, content_location, created_at
		 FROM content_index WHERE sha256 = ?`, sha256,
	).Scan(&rec.SHA256, &rec.Filepath, &rec.Ctime, &rec.Mtime, &rec.Atime, &rec.FileSize,
		&rec.Permissions, &rec.UID, &rec.GID, &rec.SourceTable, &rec.SourceID,
		&rec.HasContent, &location, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading content record: %w", err)
	}
	rec.ContentLocation = location.String
	return rec, nil
}

// HasStoredContent reports whether content bytes are durably stored for a
// hash. This is the dedup gate: a registration only triggers an upload when
// this returns false.
func (c *SQLiteCatalog) HasStoredContent(sha256 string) (bool, error) {
	var has bool
	err := c.db.QueryRow(
		`SELECT has_content FROM content_index WHERE sha256 = ?`, sha256).Scan(&has)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking stored content: %w", err)
	}
	return has, nil
}

// MarkContentStored records that bytes for a hash are durably stored. The
// flag flips at most once; if the processor never promoted the hash a minimal
// record is created so dedup still applies to later registrations.
func (c *SQLiteCatalog) MarkContentStored(sha256, location string) error {
	_, err := c.db.Exec(
		`INSERT INTO content_index (sha256, filepath, ctime, mtime, atime, file_size,
		        permissions, uid, gid, source_table, source_id, has_content,
		        content_location, created_at)
		 VALUES (?, '', 0, 0, 0, 0, 0, 0, 0, '', 0, 1, ?, ?)
		 ON CONFLICT(sha256) DO UPDATE
		   SET has_content = 1, content_location = excluded.content_location
		   WHERE has_content = 0`,
		sha256, location, c.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking content stored: %w", err)
	}
	return nil
}

// InsertHostFile records a per-host file registration.
func (c *SQLiteCatalog) InsertHostFile(rec *pp.HostFile) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = c.clock.Now().UTC()
	}

	_, err := c.db.Exec(
		`INSERT INTO host_files
		 (id, filepath, hostname, ip_address, sha256, ctime, mtime, atime, file_size,
		  permissions, uid, gid, has_file_content, file_uploaded_at, uploaded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filepath, rec.Hostname, rec.IPAddress, rec.SHA256,
		rec.Ctime, rec.Mtime, rec.Atime, rec.FileSize, rec.Permissions, rec.UID, rec.GID,
		rec.HasFileContent, rec.FileUploadedAt, rec.UploadedBy, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting host file: %w", err)
	}
	return nil
}

// MarkHostFileUploaded flips has_file_content on the host file matching
// (sha256, hostname, filepath). The update is conditional so the flag and
// upload timestamp are written at most once per record.
func (c *SQLiteCatalog) MarkHostFileUploaded(sha256, hostname, filepath string, at time.Time) (bool, error) {
	res, err := c.db.Exec(
		`UPDATE host_files
		 SET has_file_content = 1, file_uploaded_at = ?, uploaded_by = hostname
		 WHERE sha256 = ? AND hostname = ? AND filepath = ? AND has_file_content = 0`,
		at.UTC(), sha256, hostname, filepath,
	)
	if err != nil {
		return false, fmt.Errorf("marking host file uploaded: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading update count: %w", err)
	}
	return n > 0, nil
}

// ClonesBySHA256 returns all host files sharing a hash. Records holding
// content come first, ordered by upload time, followed by metadata-only
// records ordered by creation time, so the epoch record leads the list.
func (c *SQLiteCatalog) ClonesBySHA256(sha256 string) ([]*pp.HostFile, error) {
	rows, err := c.db.Query(
		`SELECT id, filepath, hostname, ip_address, sha256, ctime, mtime, atime, file_size,
		        permissions, uid, gid, has_file_content, file_uploaded_at, uploaded_by, created_at
		 FROM host_files WHERE sha256 = ?
		 ORDER BY has_file_content DESC, file_uploaded_at ASC, created_at ASC`, sha256)
	if err != nil {
		return nil, fmt.Errorf("listing clones: %w", err)
	}
	defer rows.Close()

	var clones []*pp.HostFile
	for rows.Next() {
		rec := &pp.HostFile{}
		var uploadedAt sql.NullTime
		var uploadedBy sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Filepath, &rec.Hostname, &rec.IPAddress, &rec.SHA256,
			&rec.Ctime, &rec.Mtime, &rec.Atime, &rec.FileSize, &rec.Permissions, &rec.UID, &rec.GID,
			&rec.HasFileContent, &uploadedAt, &uploadedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning host file: %w", err)
		}
		if uploadedAt.Valid {
			t := uploadedAt.Time
			rec.FileUploadedAt = &t
		}
		rec.UploadedBy = uploadedBy.String
		clones = append(clones, rec)
	}
	return clones, rows.Err()
}
