// ABOUTME: Telemetry metrics for the sort pipeline phases
// ABOUTME: Records phase durations, record and chunk counts, and failures by error kind

package extsort

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/telemetry"
)

// SortMetrics defines telemetry methods for sort jobs.
type SortMetrics interface {
	// StartPhase opens the span for one phase.
	StartPhase(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// EndPhase closes the span and records the phase duration and outcome.
	EndPhase(ctx context.Context, span trace.Span, phase string, duration time.Duration, err error)

	// RecordChunks records chunk files produced by the chunk phase.
	RecordChunks(ctx context.Context, count int)

	// RecordRecords records records read or written by a phase.
	RecordRecords(ctx context.Context, phase, direction string, count int64)
}

type sortMetrics struct {
	tel telemetry.Telemetry
}

// NewSortMetrics creates a SortMetrics reporting to tel.
func NewSortMetrics(tel telemetry.Telemetry) SortMetrics {
	return &sortMetrics{tel: tel}
}

func (m *sortMetrics) StartPhase(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(telemetry.AttrPhase, phase))
	return m.tel.StartSpan(ctx, "chunksort."+phase, attrs...)
}

func (m *sortMetrics) EndPhase(ctx context.Context, span trace.Span, phase string, duration time.Duration, err error) {
	defer span.End()

	m.tel.RecordHistogram(ctx, telemetry.PhaseDurationMetric(phase), duration.Seconds(),
		attribute.String(telemetry.AttrStatus, statusOf(err)),
	)

	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.tel.RecordCounter(ctx, telemetry.MetricErrors, 1,
		attribute.String(telemetry.AttrPhase, phase),
		attribute.String(telemetry.AttrErrorKind, errs.KindOf(err).String()),
	)
}

func (m *sortMetrics) RecordChunks(ctx context.Context, count int) {
	m.tel.RecordCounter(ctx, telemetry.MetricChunks, int64(count))
}

func (m *sortMetrics) RecordRecords(ctx context.Context, phase, direction string, count int64) {
	m.tel.RecordCounter(ctx, telemetry.MetricRecords, count,
		attribute.String(telemetry.AttrPhase, phase),
		attribute.String(telemetry.AttrDirection, direction),
	)
}

func statusOf(err error) string {
	if err != nil {
		return telemetry.StatusError
	}
	return telemetry.StatusSuccess
}
