package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for putplace.
type Config struct {
	HostID    string          `toml:"host_id"`
	BaseDir   string          `toml:"base_dir"`
	LogDir    string          `toml:"log_dir"`
	Storage   StorageConfig   `toml:"storage"`
	Database  DatabaseConfig  `toml:"database"`
	Processor ProcessorConfig `toml:"processor"`
	Scanner   ScannerConfig   `toml:"scanner"`
}

// StorageConfig configures the content store backend.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "local", "s3", or "memory"

	// Local-specific fields (only used when Type == "local")
	LocalRoot string `toml:"local_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// DatabaseConfig configures the metadata catalog.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ProcessorConfig configures the background checksum processor.
type ProcessorConfig struct {
	ChunkSize         int `toml:"chunk_size"`          // bytes hashed per read
	ChunkDelayMs      int `toml:"chunk_delay_ms"`      // throttle between chunk reads
	BatchSize         int `toml:"batch_size"`          // observations fetched per iteration
	BatchDelaySeconds int `toml:"batch_delay_seconds"` // pause between batches
}

// ScannerConfig configures directory scanning.
type ScannerConfig struct {
	Concurrency int      `toml:"concurrency"` // bounded in-flight stat operations
	Exclude     []string `toml:"exclude"`     // exclusion patterns applied to every scan
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Storage: StorageConfig{
			Type:      "local",
			LocalRoot: filepath.Join(baseDir, "files"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Processor: ProcessorConfig{
			ChunkSize:         64 * 1024,
			ChunkDelayMs:      10,
			BatchSize:         100,
			BatchDelaySeconds: 1,
		},
		Scanner: ScannerConfig{
			Concurrency: 8,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided
// Config. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
