// ABOUTME: Configuration for telemetry setup including exporters, sampling, and validation
// ABOUTME: Loads CHUNKSORT_TELEMETRY_* environment overrides on top of defaults

package telemetry

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/caarlos0/env/v10"
)

// Exporter names.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds all configuration for telemetry providers and exporters.
type Config struct {
	ServiceName    string `json:"service_name" env:"SERVICE_NAME"`
	ServiceVersion string `json:"service_version" env:"SERVICE_VERSION"`

	// Enabled controls whether telemetry is active. New returns a no-op
	// implementation when it is false.
	Enabled bool `json:"enabled" env:"ENABLED"`

	// Exporters lists the destinations: stdout for metrics and traces,
	// otlp for traces only.
	Exporters []string `json:"exporters" env:"EXPORTERS" envSeparator:","`

	// SampleRate controls trace sampling (0.0 to 1.0)
	SampleRate float64 `json:"sample_rate" env:"SAMPLE_RATE"`

	OTLPEndpoint string `json:"otlp_endpoint" env:"OTLP_ENDPOINT"`

	ExportTimeout time.Duration `json:"export_timeout" env:"EXPORT_TIMEOUT"`
	// BatchTimeout is both the span batch delay and the metric export interval.
	BatchTimeout       time.Duration `json:"batch_timeout" env:"BATCH_TIMEOUT"`
	MaxQueueSize       int           `json:"max_queue_size" env:"MAX_QUEUE_SIZE"`
	MaxExportBatchSize int           `json:"max_export_batch_size" env:"MAX_EXPORT_BATCH_SIZE"`

	// Output receives stdout exporter data. Nil means os.Stdout.
	Output io.Writer `json:"-"`
}

// DefaultConfig returns a disabled configuration with usable defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "chunksort",
		ServiceVersion:     "development",
		Enabled:            false,
		Exporters:          []string{ExporterStdout},
		SampleRate:         1.0,
		OTLPEndpoint:       "localhost:4317",
		ExportTimeout:      30 * time.Second,
		BatchTimeout:       5 * time.Second,
		MaxQueueSize:       2048,
		MaxExportBatchSize: 512,
	}
}

// LoadFromEnv overrides fields from CHUNKSORT_TELEMETRY_* variables.
func (c *Config) LoadFromEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: "CHUNKSORT_TELEMETRY_"}); err != nil {
		return fmt.Errorf("telemetry config: %w", err)
	}
	return nil
}

// Validate checks the configuration for invalid values and returns an error if found.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}

	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version cannot be empty")
	}

	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got %f", c.SampleRate)
	}

	if c.ExportTimeout <= 0 {
		return fmt.Errorf("export_timeout must be positive, got %s", c.ExportTimeout)
	}

	if c.BatchTimeout <= 0 {
		return fmt.Errorf("batch_timeout must be positive, got %s", c.BatchTimeout)
	}

	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive, got %d", c.MaxQueueSize)
	}

	if c.MaxExportBatchSize <= 0 {
		return fmt.Errorf("max_export_batch_size must be positive, got %d", c.MaxExportBatchSize)
	}

	for _, exporter := range c.Exporters {
		switch exporter {
		case ExporterStdout:
		case ExporterOTLP:
			if c.OTLPEndpoint == "" {
				return fmt.Errorf("otlp exporter requires otlp_endpoint")
			}
		default:
			return fmt.Errorf("invalid exporter: %s, valid options are: stdout, otlp", exporter)
		}
	}

	return nil
}

// HasExporter returns true if the specified exporter is configured.
func (c *Config) HasExporter(name string) bool {
	return slices.Contains(c.Exporters, name)
}
