// ABOUTME: Core telemetry abstraction over OpenTelemetry for chunksort pipeline instrumentation
// ABOUTME: Provides metric recording, tracing, and lifecycle management with a no-op implementation

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry is the only view pipeline components have of OpenTelemetry.
type Telemetry interface {
	// RecordHistogram records a histogram value with optional attributes.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter records a counter increment with optional attributes.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan creates a new tracing span with the given name and attributes.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown flushes pending data and stops all exporters.
	Shutdown(ctx context.Context) error
}

// NoopTelemetry discards everything.
type NoopTelemetry struct{}

// NewNoop creates a new no-operation telemetry instance.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

func (n *NoopTelemetry) RecordHistogram(context.Context, string, float64, ...attribute.KeyValue) {}

func (n *NoopTelemetry) RecordCounter(context.Context, string, int64, ...attribute.KeyValue) {}

// StartSpan returns the original context and the span already in it, if any.
func (n *NoopTelemetry) StartSpan(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (n *NoopTelemetry) Shutdown(context.Context) error {
	return nil
}

// RecordDuration records the seconds elapsed since start in a histogram.
func RecordDuration(ctx context.Context, tel Telemetry, name string, start time.Time, attrs ...attribute.KeyValue) {
	tel.RecordHistogram(ctx, name, time.Since(start).Seconds(), attrs...)
}

// PhaseDurationMetric is the histogram name for one pipeline phase.
func PhaseDurationMetric(phase string) string {
	return "chunksort." + phase + ".duration"
}

// Metric names
const (
	MetricRecords = "chunksort.records"
	MetricChunks  = "chunksort.chunks"
	MetricErrors  = "chunksort.errors"
)

// Attribute keys
const (
	AttrPhase       = "phase"
	AttrStatus      = "status"
	AttrErrorKind   = "error.kind"
	AttrDirection   = "direction"
	AttrStrategy    = "merge.strategy"
	AttrParallelism = "sort.parallelism"
	AttrCompression = "io.compression"
)

// Attribute values
const (
	StatusSuccess = "success"
	StatusError   = "error"

	DirectionRead  = "read"
	DirectionWrite = "write"
)
