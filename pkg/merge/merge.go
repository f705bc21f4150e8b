// Package merge combines sorted chunk files into one sorted output with a
// k-way merge.
package merge

import (
	"context"
	"time"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

// ctxCheckInterval is how many records are merged between context checks.
const ctxCheckInterval = 4096

// Merger streams k sorted chunks into a single sorted file, holding one
// record per chunk in memory.
type Merger[T any] struct {
	format   record.Format[T]
	io       []recordio.Option
	logger   log.Logger
	strategy config.MergeStrategy
	// release closes the cursor set; tests replace it to fail.
	release func([]*Cursor[T]) error
}

// Option configures a Merger.
type Option func(*settings)

type settings struct {
	io       []recordio.Option
	logger   log.Logger
	strategy config.MergeStrategy
}

// WithIOOptions sets the reader/writer options for chunks and output.
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

// WithStrategy selects how the smallest cursor is found. Unknown values
// fall back to the heap.
func WithStrategy(strategy config.MergeStrategy) Option {
	return func(s *settings) {
		s.strategy = strategy
	}
}

// New creates a Merger for records of the given format.
func New[T any](format record.Format[T], opts ...Option) *Merger[T] {
	s := settings{
		logger:   log.Component("merge"),
		strategy: config.MergeHeap,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Merger[T]{
		format:   format,
		io:       s.io,
		logger:   s.logger,
		strategy: s.strategy,
		release:  closeAll[T],
	}
}

// Merge writes the records of every chunk in chunkPaths to outputPath in
// ascending order and returns how many were written. Equal records are
// emitted in chunk order: the lower index in chunkPaths goes first.
//
// Every chunk is opened before the output is touched, so a missing chunk
// fails the merge without clobbering an existing output file. With no
// chunks the output is created empty. On failure the output is left
// incomplete and the count is 0. All chunk readers and the output writer
// are released on every return path; a release failure after an earlier
// error is logged and the earlier error is returned.
func (m *Merger[T]) Merge(ctx context.Context, chunkPaths []string, outputPath string) (total int64, err error) {
	start := time.Now()

	cursors := make([]*Cursor[T], 0, len(chunkPaths))
	defer func() {
		cerr := m.release(cursors)
		if cerr == nil {
			return
		}
		if err != nil {
			m.logger.Error("failed to release chunk readers after merge failure: %v", cerr)
			return
		}
		total, err = 0, cerr
	}()

	for i, path := range chunkPaths {
		c, err := OpenCursor(i, path, m.format.Decode, m.io...)
		if err != nil {
			return 0, err
		}
		cursors = append(cursors, c)
	}

	out := recordio.NewWriter(outputPath, m.format.Encode, m.io...)
	defer func() {
		if err != nil {
			if aerr := out.Abort(); aerr != nil {
				m.logger.Error("failed to release output %s after merge failure: %v", outputPath, aerr)
			}
			total = 0
			return
		}
		if cerr := out.Close(); cerr != nil {
			total, err = 0, errs.WithPhase(cerr, errs.PhaseMerge)
		}
	}()

	if err := out.Create(); err != nil {
		return 0, errs.WithPhase(err, errs.PhaseMerge)
	}

	for _, c := range cursors {
		if err := c.Advance(); err != nil {
			return 0, err
		}
	}

	sel := newSelector(m.strategy, m.format.Compare, cursors)
	for c := sel.next(); c != nil; c = sel.next() {
		if total%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if err := out.Write(c.Current()); err != nil {
			return 0, errs.WithPhase(err, errs.PhaseMerge)
		}
		total++
		if err := c.Advance(); err != nil {
			return 0, err
		}
		sel.advanced(c)
	}

	m.logger.Info("merged %d chunks (%d records) into %s in %s",
		len(cursors), total, outputPath, time.Since(start))
	return total, nil
}
