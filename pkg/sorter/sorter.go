// Package sorter sorts chunk files in memory, one chunk per worker.
package sorter

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

// Sorter rewrites chunk files in ascending record order. Each chunk must
// fit in memory; the chunk size chosen at chunking time guarantees that.
type Sorter[T any] struct {
	format record.Format[T]
	io     []recordio.Option
	logger log.Logger
	// observe, when set, is told about every finished chunk sort.
	observe func(path string, records int, elapsed time.Duration, err error)
}

// Option configures a Sorter.
type Option func(*settings)

type settings struct {
	io      []recordio.Option
	logger  log.Logger
	observe func(string, int, time.Duration, error)
}

// WithIOOptions sets the reader/writer options used for chunk files.
func WithIOOptions(opts ...recordio.Option) Option {
	return func(s *settings) {
		s.io = append(s.io, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithObserver registers a callback invoked after each chunk sort, from
// the worker goroutine that ran it.
func WithObserver(fn func(path string, records int, elapsed time.Duration, err error)) Option {
	return func(s *settings) {
		s.observe = fn
	}
}

// New creates a Sorter for records of the given format.
func New[T any](format record.Format[T], opts ...Option) *Sorter[T] {
	s := settings{logger: log.Component("sorter")}
	for _, opt := range opts {
		opt(&s)
	}
	return &Sorter[T]{
		format:  format,
		io:      s.io,
		logger:  s.logger,
		observe: s.observe,
	}
}

// SortChunk loads path fully, stable-sorts it and replaces its content.
// Records with equal keys keep their relative order from the chunk.
// The rewrite goes through a temp file renamed over path, so a failed
// sort leaves the unsorted chunk in place.
func (s *Sorter[T]) SortChunk(ctx context.Context, path string) (err error) {
	start := time.Now()
	records := 0
	defer func() {
		if s.observe != nil {
			s.observe(path, records, time.Since(start), err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	recs, err := recordio.ReadAll(path, s.format.Decode, s.io...)
	if err != nil {
		return errs.WithPhase(err, errs.PhaseSort)
	}
	records = len(recs)

	slices.SortStableFunc(recs, s.format.Compare)

	w := recordio.NewWriter(path, s.format.Encode, append(slices.Clip(s.io), recordio.WithAtomic())...)
	if err := w.Create(); err != nil {
		return errs.WithPhase(err, errs.PhaseSort)
	}
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			if aerr := w.Abort(); aerr != nil {
				s.logger.Error("failed to discard partial sort of %s: %v", path, aerr)
			}
			return errs.WithPhase(err, errs.PhaseSort)
		}
	}
	if err := w.Close(); err != nil {
		return errs.WithPhase(err, errs.PhaseSort)
	}

	s.logger.Debug("sorted %s (%d records) in %s", path, records, time.Since(start))
	return nil
}

// SortChunks sorts chunks one after another, stopping at the first failure.
func (s *Sorter[T]) SortChunks(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if err := s.SortChunk(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// SortChunksParallel sorts chunks with at most parallelism sorts running
// at once. parallelism must lie in [config.MinParallelism,
// config.MaxParallelism]; anything else fails before any chunk is touched.
//
// It returns once every admitted sort has finished. The first failure is
// returned; chunks not yet admitted when it happens are skipped, sorts
// already running complete, and nothing is rolled back.
func (s *Sorter[T]) SortChunksParallel(ctx context.Context, paths []string, parallelism int) error {
	if parallelism < config.MinParallelism || parallelism > config.MaxParallelism {
		return errs.Config(errs.PhaseSort, "parallelism must be between %d and %d, got %d",
			config.MinParallelism, config.MaxParallelism, parallelism)
	}

	start := time.Now()
	s.logger.Info("sorting %d chunks with %d workers", len(paths), parallelism)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, path := range paths {
		// Stop admitting work after the first failure or cancellation.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("panic sorting %s: %v\n%s", path, r, debug.Stack())
					err = fmt.Errorf("sort %s: panic: %v", path, r)
				}
			}()
			// Workers admitted before a failure was observed still check
			// once, so queued chunks do not start after the stage failed.
			if gctx.Err() != nil {
				return nil
			}
			return s.SortChunk(ctx, path)
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("chunk sort stage failed: %v", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Info("sorted %d chunks in %s", len(paths), time.Since(start))
	return nil
}
