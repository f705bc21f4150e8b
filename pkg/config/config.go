package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v10"
)

const (
	DefaultManifestFileName = "chunksort.json"
	CurrentManifestVersion  = 1

	// MinParallelism and MaxParallelism bound the chunk sort worker pool.
	MinParallelism = 1
	MaxParallelism = 10

	DefaultChunkSize    = 1_000_000
	DefaultParallelism  = 2
	DefaultChunkPattern = "chunk-%d.csv"
	DefaultBufferSize   = 128 * 1024
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

// Compression selects the stream codec applied to chunk and output files.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionZstd   Compression = "zstd"
)

// ParseCompression validates a codec name. The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionSnappy, CompressionZstd:
		return c, nil
	default:
		return CompressionNone, fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, s)
	}
}

// MergeStrategy selects how the merger finds the smallest cursor.
type MergeStrategy string

const (
	// MergeHeap keeps cursors in a min-heap, O(log k) per record.
	MergeHeap MergeStrategy = "heap"
	// MergeScan scans every live cursor, O(k) per record.
	MergeScan MergeStrategy = "scan"
)

// ParseMergeStrategy validates a strategy name. The empty string means heap.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch m := MergeStrategy(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MergeHeap:
		return MergeHeap, nil
	case MergeScan:
		return m, nil
	default:
		return MergeHeap, fmt.Errorf("%w: unknown merge strategy %q", ErrInvalidConfig, s)
	}
}

type Config struct {
	Version int `json:"version"`

	// Chunking
	ChunkDir     string `json:"chunk_dir" env:"CHUNK_DIR"`
	ChunkPattern string `json:"chunk_pattern" env:"CHUNK_PATTERN"`
	ChunkSize    int    `json:"chunk_size" env:"CHUNK_SIZE"`
	RawChunking  bool   `json:"raw_chunking" env:"RAW_CHUNKING"`

	// Sorting
	Parallelism int `json:"parallelism" env:"PARALLELISM"`

	// Merging
	MergeStrategy MergeStrategy `json:"merge_strategy" env:"MERGE_STRATEGY"`
	RemoveChunks  bool          `json:"remove_chunks" env:"REMOVE_CHUNKS"`

	// I/O
	Compression Compression `json:"compression" env:"COMPRESSION"`
	BufferSize  int         `json:"buffer_size" env:"BUFFER_SIZE"`

	// DataRoot confines the files remote sort jobs may read and write.
	DataRoot string `json:"data_root" env:"DATA_ROOT"`

	LogLevel string `json:"log_level" env:"LOG_LEVEL"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config whose chunk files live under workDir.
// workDir is also the data root of remote jobs.
func NewDefaultConfig(workDir string) *Config {
	return &Config{
		Version: CurrentManifestVersion,

		ChunkDir:     filepath.Join(workDir, "chunks"),
		ChunkPattern: DefaultChunkPattern,
		ChunkSize:    DefaultChunkSize,

		// Two workers measured fastest on the reference data set.
		Parallelism: DefaultParallelism,

		MergeStrategy: MergeHeap,

		Compression: CompressionNone,
		BufferSize:  DefaultBufferSize,

		DataRoot: workDir,

		LogLevel: "info",
	}
}

// ChunkPathTemplate returns the printf template for chunk n (1-based).
func (c *Config) ChunkPathTemplate() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(c.ChunkDir, c.ChunkPattern)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.ChunkDir == "" {
		return fmt.Errorf("%w: chunk directory not specified", ErrInvalidConfig)
	}
	// The directory becomes part of the chunk path template.
	if strings.Contains(c.ChunkDir, "%") {
		return fmt.Errorf("%w: chunk directory %q must not contain %%", ErrInvalidConfig, c.ChunkDir)
	}

	if err := ValidatePattern(c.ChunkPattern); err != nil {
		return err
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}

	if c.Parallelism < MinParallelism || c.Parallelism > MaxParallelism {
		return fmt.Errorf("%w: parallelism must be between %d and %d, got %d",
			ErrInvalidConfig, MinParallelism, MaxParallelism, c.Parallelism)
	}

	if _, err := ParseMergeStrategy(string(c.MergeStrategy)); err != nil {
		return err
	}

	if _, err := ParseCompression(string(c.Compression)); err != nil {
		return err
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size must be positive", ErrInvalidConfig)
	}

	return nil
}

// ValidatePattern checks that a chunk path template numbers its chunks
// with exactly one %d verb and no other verbs.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: chunk pattern not specified", ErrInvalidConfig)
	}
	if strings.Count(pattern, "%d") != 1 || strings.Count(pattern, "%") != 1 {
		return fmt.Errorf("%w: chunk pattern %q must contain exactly one %%d", ErrInvalidConfig, pattern)
	}
	return nil
}

// LoadFromEnv overrides fields from CHUNKSORT_* environment variables.
func (c *Config) LoadFromEnv() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := env.ParseWithOptions(c, env.Options{Prefix: "CHUNKSORT_"}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfigFromManifest loads the configuration saved in dir.
func LoadConfigFromManifest(dir string) (*Config, error) {
	manifestPath := filepath.Join(dir, DefaultManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveManifest saves the configuration to dir, replacing any previous one.
func (c *Config) SaveManifest(dir string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	manifestPath := filepath.Join(dir, DefaultManifestFileName)
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Clone returns an unshared copy, used to apply per-job overrides.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		Version:       c.Version,
		ChunkDir:      c.ChunkDir,
		ChunkPattern:  c.ChunkPattern,
		ChunkSize:     c.ChunkSize,
		RawChunking:   c.RawChunking,
		Parallelism:   c.Parallelism,
		MergeStrategy: c.MergeStrategy,
		RemoveChunks:  c.RemoveChunks,
		Compression:   c.Compression,
		BufferSize:    c.BufferSize,
		DataRoot:      c.DataRoot,
		LogLevel:      c.LogLevel,
	}
}
