package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"putplace/internal/config"
	"putplace/internal/pp"
)

// NewCatalogFromConfig creates a catalog from the database configuration.
// Supported types are "sqlite" (a file under DataDir) and "memory".
func NewCatalogFromConfig(cfg config.DatabaseConfig, clock pp.Clock) (pp.Catalog, error) {
	switch cfg.Type {
	case "memory":
		return NewSQLiteCatalog(":memory:", clock)
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("database data_dir is required for type sqlite")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteCatalog(filepath.Join(cfg.DataDir, "catalog.db"), clock)
	default:
		return nil, fmt.Errorf("unknown database type: %q", cfg.Type)
	}
}
