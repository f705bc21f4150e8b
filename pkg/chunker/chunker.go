// Package chunker splits an input record file into bounded chunk files.
package chunker

import (
	"context"
	"fmt"
	"time"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

// Chunker copies records from one input file into numbered chunk files of
// at most chunkSize records each, preserving encounter order.
type Chunker[T any] struct {
	format record.Format[T]
	io     []recordio.Option
	logger log.Logger
	// closeWriter releases a chunk writer; tests replace it to fail.
	closeWriter func(*recordio.Writer[T]) error
}

// Option configures a Chunker.
type Option func(*settings)

type settings struct {
	io     []recordio.Option
	logger log.Logger
}

// WithIOOptions passes reader/writer options (compression, buffer size)
// through to the files the chunker touches. Compression applies to the
// chunk files only; the input is always read as plain text.
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

// New creates a Chunker for records of the given format.
func New[T any](format record.Format[T], opts ...Option) *Chunker[T] {
	s := settings{logger: log.Component("chunker")}
	for _, opt := range opts {
		opt(&s)
	}
	return &Chunker[T]{
		format:      format,
		io:          s.io,
		logger:      s.logger,
		closeWriter: (*recordio.Writer[T]).Close,
	}
}

// ChunkPath returns the path of chunk n (1-based) for pathTemplate.
func ChunkPath(pathTemplate string, n int) string {
	return fmt.Sprintf(pathTemplate, n)
}

// Chunk reads inputPath and writes its records into chunk files named by
// pathTemplate (one %d verb, numbered from 1). It returns the chunk paths
// in order. Every chunk but the last holds exactly chunkSize records; an
// empty input yields no chunks and creates no files.
//
// On failure the chunk being written is left on disk in whatever state it
// reached, and the returned slice is nil.
func (c *Chunker[T]) Chunk(ctx context.Context, inputPath, pathTemplate string, chunkSize int) (chunks []string, err error) {
	if chunkSize < 1 {
		return nil, errs.Config(errs.PhaseChunk, "chunk size must be positive, got %d", chunkSize)
	}
	if err := config.ValidatePattern(pathTemplate); err != nil {
		return nil, errs.Config(errs.PhaseChunk, "%v", err)
	}

	start := time.Now()
	c.logger.Info("chunking %s into chunks of %d records", inputPath, chunkSize)

	reader, err := recordio.Open(inputPath, c.format.Decode, c.readOptions()...)
	if err != nil {
		return nil, errs.WithPhase(err, errs.PhaseChunk)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			c.logger.Error("failed to release input reader: %v", cerr)
		}
	}()

	var (
		writer *recordio.Writer[T]
		rows   int
	)

	// The writer in flight is released on every exit path. A release
	// failure only becomes the result when nothing else failed first.
	defer func() {
		if writer == nil {
			return
		}
		cerr := c.closeWriter(writer)
		if cerr == nil {
			return
		}
		if err == nil {
			chunks, err = nil, errs.WithPhase(cerr, errs.PhaseChunk)
			return
		}
		c.logger.Error("failed to release chunk writer: %v", errs.Resource(errs.PhaseChunk, writer.Path(), cerr))
	}()

	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Open the next chunk only once a record is ready for it, so the
		// input never produces an empty trailing chunk.
		if writer == nil {
			path := ChunkPath(pathTemplate, len(chunks)+1)
			writer = recordio.NewWriter(path, c.format.Encode, c.io...)
			chunks = append(chunks, path)
		}

		if err := writer.Write(reader.Record()); err != nil {
			return nil, errs.WithPhase(err, errs.PhaseChunk)
		}

		if rows++; rows == chunkSize {
			w := writer
			writer = nil
			if err := c.closeWriter(w); err != nil {
				return nil, errs.WithPhase(err, errs.PhaseChunk)
			}
			c.logger.Debug("wrote chunk %s (%d records)", w.Path(), rows)
			rows = 0
		}
	}
	if err := reader.Err(); err != nil {
		return nil, errs.WithPhase(err, errs.PhaseChunk)
	}

	if writer != nil {
		c.logger.Debug("wrote chunk %s (%d records)", writer.Path(), rows)
	}
	c.logger.Info("chunked %s into %d chunks in %s", inputPath, len(chunks), time.Since(start))
	return chunks, nil
}

func (c *Chunker[T]) readOptions() []recordio.Option {
	// The input is a plain text file; only the buffer size carries over.
	opts := append([]recordio.Option{}, c.io...)
	return append(opts, recordio.WithCompression(config.CompressionNone))
}

// ChunkLines splits inputPath into chunks without decoding records. It is
// the fast path when the records' encoded form is copied through as-is.
func ChunkLines(ctx context.Context, inputPath, pathTemplate string, chunkSize int, opts ...Option) ([]string, error) {
	return New(record.Lines(), opts...).Chunk(ctx, inputPath, pathTemplate, chunkSize)
}
