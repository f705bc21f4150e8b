// Package extsort runs the whole external sort: chunk the input, sort the
// chunks in parallel, then merge them into the output.
package extsort

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/chunksort/pkg/chunker"
	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/merge"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
	"github.com/KevoDB/chunksort/pkg/sorter"
	"github.com/KevoDB/chunksort/pkg/stats"
	"github.com/KevoDB/chunksort/pkg/telemetry"
)

// Result describes a finished sort.
type Result struct {
	// Chunks are the chunk files produced, in input order. They no longer
	// exist when RemoveChunks was set.
	Chunks        []string
	Records       int64
	ChunkDuration time.Duration
	SortDuration  time.Duration
	MergeDuration time.Duration
}

// Total is the wall time of all three phases.
func (r Result) Total() time.Duration {
	return r.ChunkDuration + r.SortDuration + r.MergeDuration
}

// Option configures a Pipeline.
type Option func(*settings)

type settings struct {
	logger log.Logger
	tel    telemetry.Telemetry
	stats  stats.Collector
}

// WithLogger sets the logger handed to every phase.
func WithLogger(logger log.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithTelemetry sets where spans and metrics go.
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(s *settings) {
		s.tel = tel
	}
}

// WithStats sets the statistics collector.
func WithStats(c stats.Collector) Option {
	return func(s *settings) {
		s.stats = c
	}
}

// Pipeline sorts files of one record format with one configuration.
type Pipeline[T any] struct {
	cfg     *config.Config
	format  record.Format[T]
	logger  log.Logger
	metrics SortMetrics
	stats   stats.Collector
}

// New validates cfg and format and returns a pipeline. The config is
// cloned; later changes to cfg do not affect the pipeline.
func New[T any](cfg *config.Config, format record.Format[T], opts ...Option) (*Pipeline[T], error) {
	if cfg == nil {
		return nil, errs.Config(errs.PhaseConfig, "no configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errs.Config(errs.PhaseConfig, "%v", err)
	}
	if err := format.Validate(); err != nil {
		return nil, errs.Config(errs.PhaseConfig, "%v", err)
	}

	s := settings{
		logger: log.Component("extsort"),
		tel:    telemetry.NewNoop(),
		stats:  stats.NewAtomicCollector(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &Pipeline[T]{
		cfg:     cfg.Clone(),
		format:  format,
		logger:  s.logger,
		metrics: NewSortMetrics(s.tel),
		stats:   s.stats,
	}, nil
}

// Stats exposes the pipeline's collector.
func (p *Pipeline[T]) Stats() stats.Collector {
	return p.stats
}

// Sort sorts inputPath into outputPath. Records with equal keys keep
// their input order. Chunk files are left in the chunk directory unless
// the config asks for their removal after a successful merge; on failure
// they are always left for inspection.
func (p *Pipeline[T]) Sort(ctx context.Context, inputPath, outputPath string) (Result, error) {
	var res Result
	start := time.Now()
	p.logger.Info("sorting %s into %s", inputPath, outputPath)

	chunks, err := p.runPhase(ctx, errs.PhaseChunk, stats.OpChunk, &res.ChunkDuration, func(ctx context.Context) ([]string, error) {
		return p.chunk(ctx, inputPath)
	})
	if err != nil {
		return res, err
	}
	res.Chunks = chunks
	p.stats.TrackChunks(uint64(len(chunks)))
	p.metrics.RecordChunks(ctx, len(chunks))

	_, err = p.runPhase(ctx, errs.PhaseSort, stats.OpSort, &res.SortDuration, func(ctx context.Context) ([]string, error) {
		return nil, p.sortChunks(ctx, chunks)
	})
	if err != nil {
		return res, err
	}

	var total int64
	_, err = p.runPhase(ctx, errs.PhaseMerge, stats.OpMerge, &res.MergeDuration, func(ctx context.Context) ([]string, error) {
		n, merr := merge.New(p.format,
			merge.WithIOOptions(p.ioOptions()...),
			merge.WithStrategy(p.cfg.MergeStrategy),
			merge.WithLogger(p.logger.WithField("phase", errs.PhaseMerge)),
		).Merge(ctx, chunks, outputPath)
		total = n
		return nil, merr
	})
	if err != nil {
		return res, err
	}
	res.Records = total
	p.stats.TrackRecords(true, uint64(total))
	p.metrics.RecordRecords(ctx, errs.PhaseMerge, telemetry.DirectionWrite, total)

	if p.cfg.RemoveChunks {
		p.removeChunks(chunks)
	}

	p.logger.Info("sorted %d records through %d chunks in %s (chunk %s, sort %s, merge %s)",
		total, len(chunks), time.Since(start), res.ChunkDuration, res.SortDuration, res.MergeDuration)
	return res, nil
}

// runPhase wraps one phase in a span, times it and reports the outcome.
func (p *Pipeline[T]) runPhase(ctx context.Context, phase string, op stats.OperationType, elapsed *time.Duration, fn func(context.Context) ([]string, error)) ([]string, error) {
	phaseCtx, span := p.metrics.StartPhase(ctx, phase,
		attribute.String(telemetry.AttrCompression, string(p.cfg.Compression)),
		attribute.String(telemetry.AttrStrategy, string(p.cfg.MergeStrategy)),
		attribute.Int(telemetry.AttrParallelism, p.cfg.Parallelism),
	)

	start := time.Now()
	out, err := fn(phaseCtx)
	*elapsed = time.Since(start)

	p.metrics.EndPhase(phaseCtx, span, phase, *elapsed, err)
	p.stats.TrackOperationWithLatency(op, *elapsed)
	if err != nil {
		p.trackError(err)
		p.logger.Error("%s phase failed after %s: %v", phase, *elapsed, err)
	}
	return out, err
}

func (p *Pipeline[T]) chunk(ctx context.Context, inputPath string) ([]string, error) {
	opts := []chunker.Option{
		chunker.WithIOOptions(p.ioOptions()...),
		chunker.WithLogger(p.logger.WithField("phase", errs.PhaseChunk)),
	}
	template := p.cfg.ChunkPathTemplate()
	if p.cfg.RawChunking {
		return chunker.ChunkLines(ctx, inputPath, template, p.cfg.ChunkSize, opts...)
	}
	return chunker.New(p.format, opts...).Chunk(ctx, inputPath, template, p.cfg.ChunkSize)
}

func (p *Pipeline[T]) sortChunks(ctx context.Context, chunks []string) error {
	s := sorter.New(p.format,
		sorter.WithIOOptions(p.ioOptions()...),
		sorter.WithLogger(p.logger.WithField("phase", errs.PhaseSort)),
		sorter.WithObserver(p.observeChunkSort),
	)
	if p.cfg.Parallelism == 1 {
		return s.SortChunks(ctx, chunks)
	}
	return s.SortChunksParallel(ctx, chunks, p.cfg.Parallelism)
}

// observeChunkSort runs on sort worker goroutines.
func (p *Pipeline[T]) observeChunkSort(path string, records int, elapsed time.Duration, err error) {
	p.stats.TrackOperationWithLatency(stats.OpSortChunk, elapsed)
	if err != nil {
		return
	}
	p.stats.TrackChunkSorted()
	p.stats.TrackRecords(false, uint64(records))
}

func (p *Pipeline[T]) removeChunks(chunks []string) {
	for _, path := range chunks {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove chunk %s: %v", path, err)
		}
	}
	p.logger.Debug("removed %d chunk files", len(chunks))
}

func (p *Pipeline[T]) ioOptions() []recordio.Option {
	return recordio.FromConfig(p.cfg)
}

func (p *Pipeline[T]) trackError(err error) {
	kind := errs.KindOf(err).String()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = "canceled"
	}
	p.stats.TrackError(kind)
}

// Sort runs a one-off pipeline.
func Sort[T any](ctx context.Context, cfg *config.Config, format record.Format[T], inputPath, outputPath string, opts ...Option) (Result, error) {
	p, err := New(cfg, format, opts...)
	if err != nil {
		return Result{}, err
	}
	return p.Sort(ctx, inputPath, outputPath)
}

// SortPeople sorts a person file by ID.
func SortPeople(ctx context.Context, cfg *config.Config, inputPath, outputPath string, opts ...Option) (Result, error) {
	return Sort(ctx, cfg, record.People(), inputPath, outputPath, opts...)
}

// FormatResult renders the per-phase report printed by the CLI.
func FormatResult(res Result) string {
	return fmt.Sprintf("chunks: %d, records: %d, chunk: %s, sort: %s, merge: %s, total: %s",
		len(res.Chunks), res.Records, res.ChunkDuration, res.SortDuration, res.MergeDuration, res.Total())
}
