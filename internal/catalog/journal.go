package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"putplace/internal/pp"
)

// partitionRe validates journal partition table names before they are
// interpolated into SQL identifiers.
var partitionRe = regexp.MustCompile(`^file_log_\d{4}_\d{2}$`)

// partitionFor returns the journal partition name for a point in time,
// e.g. "file_log_2026_08".
func partitionFor(t time.Time) string {
	return t.UTC().Format("file_log_2006_01")
}

// ensurePartition creates a journal partition if it does not exist yet.
func (c *SQLiteCatalog) ensurePartition(name string) error {
	if !partitionRe.MatchString(name) {
		return fmt.Errorf("invalid partition name: %q", name)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filepath TEXT NOT NULL,
		ctime REAL NOT NULL,
		mtime REAL NOT NULL,
		atime REAL NOT NULL,
		file_size INTEGER NOT NULL,
		permissions INTEGER NOT NULL,
		uid INTEGER NOT NULL,
		gid INTEGER NOT NULL,
		discovered_at TIMESTAMP NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		abandoned INTEGER NOT NULL DEFAULT 0
	)`, name)
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("creating partition %s: %w", name, err)
	}

	for _, idx := range []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_filepath ON %s(filepath)`, name, name),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_pending ON %s(processed, abandoned)`, name, name),
	} {
		if _, err := c.db.Exec(idx); err != nil {
			return fmt.Errorf("indexing partition %s: %w", name, err)
		}
	}

	return nil
}

// ListPartitions returns journal partition names, oldest first. The naming
// scheme sorts chronologically.
func (c *SQLiteCatalog) ListPartitions() ([]string, error) {
	rows, err := c.db.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'file_log_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning partition name: %w", err)
		}
		if partitionRe.MatchString(name) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// LogObservation journals an observation into the current monthly partition.
// The insert is skipped when the newest observation for the filepath carries
// identical ctime and mtime, so rescanning an unchanged tree journals
// nothing.
func (c *SQLiteCatalog) LogObservation(obs *pp.Observation) (bool, error) {
	partitions, err := c.ListPartitions()
	if err != nil {
		return false, err
	}

	// Newest partition first: the first hit is the most recent observation.
	for i := len(partitions) - 1; i >= 0; i-- {
		var ctime, mtime float64
		query := fmt.Sprintf(
			`SELECT ctime, mtime FROM %s WHERE filepath = ? ORDER BY id DESC LIMIT 1`, partitions[i])
		err := c.db.QueryRow(query, obs.Filepath).Scan(&ctime, &mtime)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("reading last observation: %w", err)
		}
		if ctime == obs.Ctime && mtime == obs.Mtime {
			return false, nil
		}
		break
	}

	now := c.clock.Now().UTC()
	partition := partitionFor(now)
	if err := c.ensurePartition(partition); err != nil {
		return false, err
	}

	res, err := c.db.Exec(fmt.Sprintf(
		`INSERT INTO %s (filepath, ctime, mtime, atime, file_size, permissions, uid, gid, discovered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, partition),
		obs.Filepath, obs.Ctime, obs.Mtime, obs.Atime, obs.FileSize, obs.Permissions, obs.UID, obs.GID, now)
	if err != nil {
		return false, fmt.Errorf("journaling observation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("reading journaled observation id: %w", err)
	}

	obs.ID = id
	obs.Partition = partition
	obs.DiscoveredAt = now
	return true, nil
}

// UnprocessedObservations returns up to limit observations that are neither
// processed nor abandoned, oldest partition first, oldest row first.
func (c *SQLiteCatalog) UnprocessedObservations(limit int) ([]*pp.Observation, error) {
	partitions, err := c.ListPartitions()
	if err != nil {
		return nil, err
	}

	var entries []*pp.Observation
	for _, partition := range partitions {
		if len(entries) >= limit {
			break
		}

		query := fmt.Sprintf(
			`SELECT id, filepath, ctime, mtime, atime, file_size, permissions, uid, gid, discovered_at, attempts
			 FROM %s WHERE processed = 0 AND abandoned = 0 ORDER BY id LIMIT ?`, partition)
		rows, err := c.db.Query(query, limit-len(entries))
		if err != nil {
			return nil, fmt.Errorf("fetching unprocessed observations: %w", err)
		}

		for rows.Next() {
			obs := &pp.Observation{Partition: partition}
			if err := rows.Scan(&obs.ID, &obs.Filepath, &obs.Ctime, &obs.Mtime, &obs.Atime,
				&obs.FileSize, &obs.Permissions, &obs.UID, &obs.GID, &obs.DiscoveredAt, &obs.Attempts); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning observation: %w", err)
			}
			entries = append(entries, obs)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return entries, nil
}

// MarkObservationProcessed flips processed on a journal row, conditional on
// it not being processed yet.
func (c *SQLiteCatalog) MarkObservationProcessed(partition string, id int64) error {
	if !partitionRe.MatchString(partition) {
		return fmt.Errorf("invalid partition name: %q", partition)
	}

	_, err := c.db.Exec(fmt.Sprintf(
		`UPDATE %s SET processed = 1 WHERE id = ? AND processed = 0`, partition), id)
	if err != nil {
		return fmt.Errorf("marking observation processed: %w", err)
	}
	return nil
}

// RecordObservationFailure increments the attempt counter of a journal row
// and abandons it once the attempt limit is reached. Abandoned rows stop
// blocking partition garbage collection.
func (c *SQLiteCatalog) RecordObservationFailure(partition string, id int64) error {
	if !partitionRe.MatchString(partition) {
		return fmt.Errorf("invalid partition name: %q", partition)
	}

	_, err := c.db.Exec(fmt.Sprintf(
		`UPDATE %s SET attempts = attempts + 1,
		        abandoned = CASE WHEN attempts + 1 >= ? THEN 1 ELSE abandoned END
		 WHERE id = ? AND processed = 0`, partition), c.maxAttempts, id)
	if err != nil {
		return fmt.Errorf("recording observation failure: %w", err)
	}
	return nil
}

// CountUnprocessed returns the number of observations waiting for checksum
// processing across all partitions.
func (c *SQLiteCatalog) CountUnprocessed() (int64, error) {
	partitions, err := c.ListPartitions()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, partition := range partitions {
		var n int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE processed = 0 AND abandoned = 0`, partition)
		if err := c.db.QueryRow(query).Scan(&n); err != nil {
			return 0, fmt.Errorf("counting unprocessed in %s: %w", partition, err)
		}
		total += n
	}
	return total, nil
}

// DropDrainedPartitions deletes journal partitions in which every row is
// processed or abandoned. The drained check runs again inside the drop
// transaction so a concurrent journal write cannot be lost; the current
// month's partition is always kept.
func (c *SQLiteCatalog) DropDrainedPartitions() ([]string, error) {
	partitions, err := c.ListPartitions()
	if err != nil {
		return nil, err
	}

	current := partitionFor(c.clock.Now())

	var dropped []string
	for _, partition := range partitions {
		if partition == current {
			continue
		}

		ok, err := c.dropIfDrained(partition)
		if err != nil {
			return dropped, err
		}
		if ok {
			dropped = append(dropped, partition)
		}
	}
	return dropped, nil
}

// dropIfDrained drops one partition if it has no pending rows, checking
// inside the same transaction that performs the drop.
func (c *SQLiteCatalog) dropIfDrained(partition string) (bool, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return false, fmt.Errorf("starting partition drop: %w", err)
	}
	defer tx.Rollback()

	var pending int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE processed = 0 AND abandoned = 0`, partition)
	if err := tx.QueryRow(query).Scan(&pending); err != nil {
		return false, fmt.Errorf("checking partition %s: %w", partition, err)
	}
	if pending > 0 {
		return false, nil
	}

	if _, err := tx.Exec(fmt.Sprintf(`DROP TABLE %s`, partition)); err != nil {
		return false, fmt.Errorf("dropping partition %s: %w", partition, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing partition drop: %w", err)
	}
	return true, nil
}
