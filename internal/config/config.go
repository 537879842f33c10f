// Package config provides unified configuration for the stayridge storage layer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the storage engine.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Partition holds partition lifecycle policy
	Partition PartitionConfig `json:"partition" yaml:"partition"`

	// Store holds per-partition record store limits
	Store StoreConfig `json:"store" yaml:"store"`

	// WAL holds write-ahead log configuration
	WAL WALConfig `json:"wal" yaml:"wal"`

	// Query holds query execution configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Index holds automated index policy configuration
	Index IndexConfig `json:"index" yaml:"index"`

	// Storage holds archive object storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// PartitionConfig holds partition lifecycle policy.
type PartitionConfig struct {
	// RequireContiguous rejects new partitions that do not abut the
	// previous upper bound exactly
	RequireContiguous bool `json:"require_contiguous" yaml:"require_contiguous"`

	// AutoFuture keeps an open-ended final partition that absorbs writes
	// beyond the last explicit boundary. When false (the default), writes
	// past the horizon fail and the operator must provision ahead.
	AutoFuture bool `json:"auto_future" yaml:"auto_future"`

	// RetentionDays is the age below which partitions may not be retired
	RetentionDays int `json:"retention_days" yaml:"retention_days"`

	// RetireCheckInterval is the interval between retirement sweeps
	RetireCheckInterval time.Duration `json:"retire_check_interval" yaml:"retire_check_interval"`
}

// StoreConfig holds per-partition record store limits.
type StoreConfig struct {
	// MaxRecordsPerPartition caps a partition's record count; 0 is unlimited
	MaxRecordsPerPartition int `json:"max_records_per_partition" yaml:"max_records_per_partition"`
}

// WALConfig holds write-ahead log configuration.
type WALConfig struct {
	// Dir is the WAL directory; defaults to <data_dir>/wal
	Dir string `json:"dir" yaml:"dir"`

	// MaxSegmentSize is the segment rotation threshold in bytes
	MaxSegmentSize int64 `json:"max_segment_size" yaml:"max_segment_size"`

	// SyncOnAppend fsyncs every append before acknowledging the write
	SyncOnAppend bool `json:"sync_on_append" yaml:"sync_on_append"`
}

// QueryConfig holds query execution configuration.
type QueryConfig struct {
	// Concurrency is the number of partitions fetched in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// MaxPageSize caps a single page of results; 0 is unlimited
	MaxPageSize int `json:"max_page_size" yaml:"max_page_size"`

	// StatsWindow is how long predicate frequency entries stay live
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// IndexConfig holds automated index policy configuration.
type IndexConfig struct {
	// Enabled turns the background index policy loop on
	Enabled bool `json:"enabled" yaml:"enabled"`

	// CreateThreshold is the predicate frequency above which an index is declared
	CreateThreshold int64 `json:"create_threshold" yaml:"create_threshold"`

	// DropThreshold is the frequency below which an automatic index is dropped
	DropThreshold int64 `json:"drop_threshold" yaml:"drop_threshold"`

	// CheckInterval is the interval between policy evaluations
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`

	// MaxIndexes caps the number of automatically managed indexes
	MaxIndexes int `json:"max_indexes" yaml:"max_indexes"`
}

// StorageConfig holds archive object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/stayridge",
		Partition: PartitionConfig{
			RequireContiguous:   false,
			AutoFuture:          false,
			RetentionDays:       365,
			RetireCheckInterval: 1 * time.Hour,
		},
		Store: StoreConfig{
			MaxRecordsPerPartition: 0,
		},
		WAL: WALConfig{
			Dir:            "",
			MaxSegmentSize: 64 * 1024 * 1024,
			SyncOnAppend:   true,
		},
		Query: QueryConfig{
			Concurrency: 8,
			MaxPageSize: 10000,
			StatsWindow: 1 * time.Hour,
		},
		Index: IndexConfig{
			Enabled:         false,
			CreateThreshold: 100,
			DropThreshold:   10,
			CheckInterval:   5 * time.Minute,
			MaxIndexes:      4,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/stayridge"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = filepath.Join(c.DataDir, "wal")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "archive")
	}
}

// CatalogPath returns the path to the catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// RetentionHorizon returns the newest partition-key value that is old enough
// to retire, relative to now.
func (c *Config) RetentionHorizon(now time.Time) int64 {
	return now.AddDate(0, 0, -c.Partition.RetentionDays).UnixNano()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Partition.RetentionDays < 0 {
		return fmt.Errorf("partition.retention_days must be >= 0, got %d", c.Partition.RetentionDays)
	}

	if c.Store.MaxRecordsPerPartition < 0 {
		return fmt.Errorf("store.max_records_per_partition must be >= 0, got %d", c.Store.MaxRecordsPerPartition)
	}

	if c.WAL.MaxSegmentSize <= 0 {
		return fmt.Errorf("wal.max_segment_size must be > 0, got %d", c.WAL.MaxSegmentSize)
	}

	if c.Query.Concurrency <= 0 {
		return fmt.Errorf("query.concurrency must be > 0, got %d", c.Query.Concurrency)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Index.Enabled {
		if c.Index.CreateThreshold <= 0 {
			return fmt.Errorf("index.create_threshold must be > 0, got %d", c.Index.CreateThreshold)
		}
		if c.Index.MaxIndexes <= 0 {
			return fmt.Errorf("index.max_indexes must be > 0, got %d", c.Index.MaxIndexes)
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the STAYRIDGE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STAYRIDGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Partition policy
	if v := os.Getenv("STAYRIDGE_PARTITION_REQUIRE_CONTIGUOUS"); v != "" {
		cfg.Partition.RequireContiguous = v == "true" || v == "1"
	}
	if v := os.Getenv("STAYRIDGE_PARTITION_AUTO_FUTURE"); v != "" {
		cfg.Partition.AutoFuture = v == "true" || v == "1"
	}
	if v := os.Getenv("STAYRIDGE_PARTITION_RETENTION_DAYS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Partition.RetentionDays)
	}
	if v := os.Getenv("STAYRIDGE_PARTITION_RETIRE_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Partition.RetireCheckInterval = d
		}
	}

	// Store limits
	if v := os.Getenv("STAYRIDGE_STORE_MAX_RECORDS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Store.MaxRecordsPerPartition)
	}

	// WAL
	if v := os.Getenv("STAYRIDGE_WAL_DIR"); v != "" {
		cfg.WAL.Dir = v
	}
	if v := os.Getenv("STAYRIDGE_WAL_SYNC_ON_APPEND"); v != "" {
		cfg.WAL.SyncOnAppend = v == "true" || v == "1"
	}

	// Query
	if v := os.Getenv("STAYRIDGE_QUERY_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.Concurrency)
	}
	if v := os.Getenv("STAYRIDGE_QUERY_MAX_PAGE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.MaxPageSize)
	}

	// Index policy
	if v := os.Getenv("STAYRIDGE_INDEX_ENABLED"); v != "" {
		cfg.Index.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("STAYRIDGE_INDEX_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Index.CheckInterval = d
		}
	}

	// Storage
	if v := os.Getenv("STAYRIDGE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("STAYRIDGE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("STAYRIDGE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("STAYRIDGE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("STAYRIDGE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.WAL.Dir,
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
