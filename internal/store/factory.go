package store

import (
	"context"
	"fmt"

	"putplace/internal/config"
	"putplace/internal/pp"
)

// NewStoreFromConfig creates a ContentStore implementation based on the
// storage config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StorageConfig) (pp.ContentStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "local":
		if cfg.LocalRoot == "" {
			return nil, fmt.Errorf("local storage requires local_root to be set")
		}
		return NewFilesystemStore(cfg.LocalRoot)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
