package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	workDir := "/tmp/sortjob"
	cfg := NewDefaultConfig(workDir)

	require.Equal(t, CurrentManifestVersion, cfg.Version)
	require.Equal(t, filepath.Join(workDir, "chunks"), cfg.ChunkDir)
	require.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	require.Equal(t, 2, cfg.Parallelism)
	require.Equal(t, MergeHeap, cfg.MergeStrategy)
	require.Equal(t, workDir, cfg.DataRoot)
	require.Equal(t, filepath.Join(workDir, "chunks", "chunk-%d.csv"), cfg.ChunkPathTemplate())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, NewDefaultConfig("/tmp/sortjob").Validate())

	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{
			name:     "invalid version",
			mutate:   func(c *Config) { c.Version = 0 },
			expected: "invalid configuration: invalid version 0",
		},
		{
			name:     "empty chunk dir",
			mutate:   func(c *Config) { c.ChunkDir = "" },
			expected: "invalid configuration: chunk directory not specified",
		},
		{
			name:     "verb in chunk dir",
			mutate:   func(c *Config) { c.ChunkDir = "/tmp/100%d" },
			expected: `invalid configuration: chunk directory "/tmp/100%d" must not contain %`,
		},
		{
			name:     "percent in chunk dir",
			mutate:   func(c *Config) { c.ChunkDir = "/tmp/50%off" },
			expected: `invalid configuration: chunk directory "/tmp/50%off" must not contain %`,
		},
		{
			name:     "pattern without verb",
			mutate:   func(c *Config) { c.ChunkPattern = "chunk.csv" },
			expected: `invalid configuration: chunk pattern "chunk.csv" must contain exactly one %d`,
		},
		{
			name:     "pattern with two verbs",
			mutate:   func(c *Config) { c.ChunkPattern = "chunk-%d-%d.csv" },
			expected: `invalid configuration: chunk pattern "chunk-%d-%d.csv" must contain exactly one %d`,
		},
		{
			name:     "zero chunk size",
			mutate:   func(c *Config) { c.ChunkSize = 0 },
			expected: "invalid configuration: chunk size must be positive",
		},
		{
			name:     "parallelism too low",
			mutate:   func(c *Config) { c.Parallelism = 0 },
			expected: "invalid configuration: parallelism must be between 1 and 10, got 0",
		},
		{
			name:     "parallelism too high",
			mutate:   func(c *Config) { c.Parallelism = 11 },
			expected: "invalid configuration: parallelism must be between 1 and 10, got 11",
		},
		{
			name:     "unknown strategy",
			mutate:   func(c *Config) { c.MergeStrategy = "bubble" },
			expected: `invalid configuration: unknown merge strategy "bubble"`,
		},
		{
			name:     "unknown compression",
			mutate:   func(c *Config) { c.Compression = "lz4" },
			expected: `invalid configuration: unknown compression "lz4"`,
		},
		{
			name:     "zero buffer",
			mutate:   func(c *Config) { c.BufferSize = 0 },
			expected: "invalid configuration: buffer size must be positive",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig("/tmp/sortjob")
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidConfig))
			require.Equal(t, tc.expected, err.Error())
		})
	}
}

func TestConfigManifestSaveLoad(t *testing.T) {
	tempDir := t.TempDir()

	cfg := NewDefaultConfig(tempDir)
	cfg.ChunkSize = 5000
	cfg.Parallelism = 4
	cfg.Compression = CompressionZstd

	require.NoError(t, cfg.SaveManifest(tempDir))

	loaded, err := LoadConfigFromManifest(tempDir)
	require.NoError(t, err)
	require.Equal(t, 5000, loaded.ChunkSize)
	require.Equal(t, 4, loaded.Parallelism)
	require.Equal(t, CompressionZstd, loaded.Compression)
	require.Equal(t, tempDir, loaded.DataRoot)
}

func TestLoadConfigFromMissingManifest(t *testing.T) {
	_, err := LoadConfigFromManifest(t.TempDir())
	require.True(t, errors.Is(err, ErrManifestNotFound), "got %v", err)
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("CHUNKSORT_CHUNK_SIZE", "250")
	t.Setenv("CHUNKSORT_PARALLELISM", "6")
	t.Setenv("CHUNKSORT_MERGE_STRATEGY", "scan")
	t.Setenv("CHUNKSORT_REMOVE_CHUNKS", "true")
	t.Setenv("CHUNKSORT_DATA_ROOT", "/srv/sort")

	cfg := NewDefaultConfig(t.TempDir())
	require.NoError(t, cfg.LoadFromEnv())

	require.Equal(t, 250, cfg.ChunkSize)
	require.Equal(t, 6, cfg.Parallelism)
	require.Equal(t, MergeScan, cfg.MergeStrategy)
	require.True(t, cfg.RemoveChunks)
	require.Equal(t, "/srv/sort", cfg.DataRoot)
	// Untouched fields keep their defaults.
	require.Equal(t, DefaultChunkPattern, cfg.ChunkPattern)
}

func TestConfigLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("CHUNKSORT_CHUNK_SIZE", "lots")

	cfg := NewDefaultConfig(t.TempDir())
	require.True(t, errors.Is(cfg.LoadFromEnv(), ErrInvalidConfig))
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/sortjob")
	clone := cfg.Clone()
	require.Equal(t, cfg.DataRoot, clone.DataRoot)

	clone.Update(func(c *Config) { c.ChunkSize = 1 })
	require.NotEqual(t, 1, cfg.ChunkSize, "clone shares state with original")
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{
		"":       CompressionNone,
		"none":   CompressionNone,
		"SNAPPY": CompressionSnappy,
		"zstd":   CompressionZstd,
	} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseCompression("lz4")
	require.True(t, errors.Is(err, ErrInvalidConfig))
}
