package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"putplace/internal/catalog/migrations"
	"putplace/internal/pp"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// defaultMaxAttempts is the number of checksum failures after which an
// observation is abandoned and stops blocking partition garbage collection.
const defaultMaxAttempts = 3

// SQLiteCatalog implements the Catalog interface using SQLite. Static tables
// are managed by embedded migrations; monthly journal partitions are created
// on demand and enumerated through sqlite_master.
type SQLiteCatalog struct {
	db          *sql.DB
	clock       pp.Clock
	maxAttempts int64
	path        string
}

// NewSQLiteCatalog opens (or creates) a catalog at the given path and brings
// its schema up to date. path can be a file path or ":memory:" for an
// in-memory catalog. clock may be nil, in which case wall time is used.
func NewSQLiteCatalog(path string, clock pp.Clock) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating catalog schema: %w", err)
	}

	if clock == nil {
		clock = pp.RealClock{}
	}

	return &SQLiteCatalog{
		db:          db,
		clock:       clock,
		maxAttempts: defaultMaxAttempts,
		path:        path,
	}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers (concurrent scanner workers
	// journal through here) and keeps ":memory:" pointing at one database.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward
	// compatibility) and wait for locks instead of failing immediately.
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// Close closes the catalog.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// Path registry operations

func (c *SQLiteCatalog) AddPath(path string, recursive bool) (*pp.RegisteredPath, error) {
	now := c.clock.Now().UTC()
	res, err := c.db.Exec(
		`INSERT INTO paths (path, recursive, enabled, created_at) VALUES (?, ?, 1, ?)`,
		path, recursive, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting path: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted path id: %w", err)
	}

	return &pp.RegisteredPath{ID: id, Path: path, Recursive: recursive, Enabled: true, CreatedAt: now}, nil
}

func (c *SQLiteCatalog) GetPath(id int64) (*pp.RegisteredPath, error) {
	return c.scanPath(c.db.QueryRow(
		`SELECT id, path, recursive, enabled, last_scanned_at, created_at FROM paths WHERE id = ?`, id))
}

func (c *SQLiteCatalog) GetPathByPath(path string) (*pp.RegisteredPath, error) {
	return c.scanPath(c.db.QueryRow(
		`SELECT id, path, recursive, enabled, last_scanned_at, created_at FROM paths WHERE path = ?`, path))
}

func (c *SQLiteCatalog) ListPaths(enabledOnly bool) ([]*pp.RegisteredPath, error) {
	query := `SELECT id, path, recursive, enabled, last_scanned_at, created_at FROM paths`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY path`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("listing paths: %w", err)
	}
	defer rows.Close()

	var paths []*pp.RegisteredPath
	for rows.Next() {
		p, err := c.scanPathRow(rows)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (c *SQLiteCatalog) SetPathEnabled(id int64, enabled bool) error {
	_, err := c.db.Exec(`UPDATE paths SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("updating path enabled: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) TouchPathScanned(id int64, at time.Time) error {
	_, err := c.db.Exec(`UPDATE paths SET last_scanned_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating last_scanned_at: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) DeletePath(id int64) error {
	_, err := c.db.Exec(`DELETE FROM paths WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting path: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) AddExclude(pattern string) (*pp.Exclude, error) {
	now := c.clock.Now().UTC()
	res, err := c.db.Exec(`INSERT INTO excludes (pattern, created_at) VALUES (?, ?)`, pattern, now)
	if err != nil {
		return nil, fmt.Errorf("inserting exclude: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted exclude id: %w", err)
	}

	return &pp.Exclude{ID: id, Pattern: pattern, CreatedAt: now}, nil
}

func (c *SQLiteCatalog) ListExcludes() ([]*pp.Exclude, error) {
	rows, err := c.db.Query(`SELECT id, pattern, created_at FROM excludes ORDER BY pattern`)
	if err != nil {
		return nil, fmt.Errorf("listing excludes: %w", err)
	}
	defer rows.Close()

	var excludes []*pp.Exclude
	for rows.Next() {
		e := &pp.Exclude{}
		if err := rows.Scan(&e.ID, &e.Pattern, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning exclude: %w", err)
		}
		excludes = append(excludes, e)
	}
	return excludes, rows.Err()
}

func (c *SQLiteCatalog) DeleteExclude(id int64) error {
	_, err := c.db.Exec(`DELETE FROM excludes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting exclude: %w", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (c *SQLiteCatalog) scanPath(row *sql.Row) (*pp.RegisteredPath, error) {
	p, err := c.scanPathRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (c *SQLiteCatalog) scanPathRow(row rowScanner) (*pp.RegisteredPath, error) {
	p := &pp.RegisteredPath{}
	var lastScanned sql.NullTime
	if err := row.Scan(&p.ID, &p.Path, &p.Recursive, &p.Enabled, &lastScanned, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning path: %w", err)
	}
	if lastScanned.Valid {
		t := lastScanned.Time
		p.LastScannedAt = &t
	}
	return p, nil
}

// Compile-time check that SQLiteCatalog implements pp.Catalog
var _ pp.Catalog = (*SQLiteCatalog)(nil)
