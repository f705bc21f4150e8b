package recordio

import (
	"github.com/KevoDB/chunksort/pkg/config"
)

type options struct {
	compression config.Compression
	bufferSize  int
	atomic      bool
}

func defaultOptions() options {
	return options{
		compression: config.CompressionNone,
		bufferSize:  config.DefaultBufferSize,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures readers and writers.
type Option func(*options)

// WithCompression sets the stream codec. Readers must use the same codec
// the file was written with.
func WithCompression(c config.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithBufferSize sets the bufio buffer size. Non-positive values are ignored.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithAtomic makes a Writer write to a hidden temp file in the target
// directory and rename it over the target on Close. Readers ignore it.
func WithAtomic() Option {
	return func(o *options) {
		o.atomic = true
	}
}

// FromConfig translates the I/O settings of cfg into options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithCompression(cfg.Compression),
		WithBufferSize(cfg.BufferSize),
	}
}
