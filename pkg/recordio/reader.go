// Package recordio reads and writes line-oriented record files: one
// encoded record per line, optionally wrapped in a compression stream.
package recordio

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/record"
)

// Reader is a lazy, single-pass sequence of records decoded from a file.
// A new pass requires opening the path again.
//
//	r, err := recordio.Open(path, record.ParsePerson)
//	if err != nil { ... }
//	defer r.Close()
//	for r.Next() {
//		p := r.Record()
//	}
//	if err := r.Err(); err != nil { ... }
type Reader[T any] struct {
	path   string
	decode record.DecodeFunc[T]

	file   *os.File
	stream io.ReadCloser
	buf    *bufio.Reader

	current T
	line    int
	err     error
	done    bool
}

// Open opens path for reading. Open failures are IOErrors.
func Open[T any](path string, decode record.DecodeFunc[T], opts ...Option) (*Reader[T], error) {
	o := buildOptions(opts)

	file, err := os.Open(path)
	if err != nil {
		return nil, errs.IO(errs.PhaseRead, path, err)
	}

	stream, err := newCompressReader(file, o.compression)
	if err != nil {
		file.Close()
		return nil, errs.IO(errs.PhaseRead, path, err)
	}

	return &Reader[T]{
		path:   path,
		decode: decode,
		file:   file,
		stream: stream,
		buf:    bufio.NewReaderSize(stream, o.bufferSize),
	}, nil
}

// Next advances to the next non-blank line and decodes it. It returns
// false at end of file or on the first error; check Err afterwards.
func (r *Reader[T]) Next() bool {
	if r.done {
		return false
	}

	for {
		raw, err := r.buf.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			r.fail(errs.IO(errs.PhaseRead, r.path, err))
			return false
		}
		if raw == "" && err != nil {
			r.done = true
			return false
		}

		r.line++
		text := strings.TrimRight(raw, "\r\n")
		if strings.TrimSpace(text) == "" {
			if err != nil {
				r.done = true
				return false
			}
			continue
		}

		rec, decErr := r.decode(text)
		if decErr != nil {
			r.fail(errs.Parse(errs.PhaseRead, r.path, r.line, decErr))
			return false
		}
		r.current = rec
		return true
	}
}

func (r *Reader[T]) fail(err error) {
	r.err = err
	r.done = true
	var zero T
	r.current = zero
}

// Record returns the record decoded by the last successful Next.
func (r *Reader[T]) Record() T {
	return r.current
}

// Line returns the 1-based line number of the current record.
func (r *Reader[T]) Line() int {
	return r.line
}

// Path returns the file being read.
func (r *Reader[T]) Path() string {
	return r.path
}

// Err returns the error that stopped iteration, if any.
func (r *Reader[T]) Err() error {
	return r.err
}

// Close releases the file. It is safe to call more than once.
func (r *Reader[T]) Close() error {
	if r.file == nil {
		return nil
	}
	r.done = true
	r.stream.Close()
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return errs.Resource(errs.PhaseRead, r.path, err)
	}
	return nil
}

// ReadAll loads every record of path into memory.
func ReadAll[T any](path string, decode record.DecodeFunc[T], opts ...Option) (records []T, err error) {
	r, err := Open(path, decode, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for r.Next() {
		records = append(records, r.Record())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
