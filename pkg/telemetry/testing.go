// ABOUTME: In-memory telemetry for tests that records what a component reported
// ABOUTME: Spans are real no-op spans; only names and values are captured

package telemetry

import (
	"context"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Recorder is a Telemetry that keeps every recording in memory.
type Recorder struct {
	mu         sync.Mutex
	histograms map[string][]float64
	counters   map[string]int64
	spans      []string
	shutdown   bool
}

// NewForTesting returns an empty Recorder.
func NewForTesting() *Recorder {
	return &Recorder{
		histograms: make(map[string][]float64),
		counters:   make(map[string]int64),
	}
}

func (r *Recorder) RecordHistogram(_ context.Context, name string, value float64, _ ...attribute.KeyValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[name] = append(r.histograms[name], value)
}

func (r *Recorder) RecordCounter(_ context.Context, name string, value int64, _ ...attribute.KeyValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += value
}

func (r *Recorder) StartSpan(ctx context.Context, name string, _ ...attribute.KeyValue) (context.Context, trace.Span) {
	r.mu.Lock()
	r.spans = append(r.spans, name)
	r.mu.Unlock()
	return ctx, trace.SpanFromContext(ctx)
}

func (r *Recorder) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = true
	return nil
}

// Histogram returns the samples recorded under name.
func (r *Recorder) Histogram(name string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.histograms[name])
}

// Counter returns the sum recorded under name.
func (r *Recorder) Counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Spans returns span names in start order.
func (r *Recorder) Spans() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.spans)
}

// IsShutdown reports whether Shutdown was called.
func (r *Recorder) IsShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdown
}

var _ Telemetry = (*Recorder)(nil)
