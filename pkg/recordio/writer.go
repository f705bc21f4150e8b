package recordio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/record"
)

var errWriterClosed = errors.New("writer already closed")

// Writer appends encoded records to a file, one per line. The file is
// created lazily on the first Write (or an explicit Create): parent
// directories are made and existing content is truncated.
type Writer[T any] struct {
	path   string
	encode record.EncodeFunc[T]
	opts   options

	tmpPath string
	file    *os.File
	stream  io.WriteCloser
	buf     *bufio.Writer

	count  int64
	closed bool
}

// NewWriter returns a writer for path. Nothing touches the disk until the
// first record is written.
func NewWriter[T any](path string, encode record.EncodeFunc[T], opts ...Option) *Writer[T] {
	return &Writer[T]{
		path:   path,
		encode: encode,
		opts:   buildOptions(opts),
	}
}

// Create opens the target now, truncating it. Writers that must leave an
// empty file behind even when no record arrives call this up front.
func (w *Writer[T]) Create() error {
	if w.closed {
		return errs.IO(errs.PhaseWrite, w.path, errWriterClosed)
	}
	if w.file != nil {
		return nil
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.IO(errs.PhaseWrite, w.path, err)
		}
	}

	target := w.path
	if w.opts.atomic {
		w.tmpPath = filepath.Join(filepath.Dir(w.path), fmt.Sprintf(".%s.tmp", filepath.Base(w.path)))
		target = w.tmpPath
	}

	file, err := os.Create(target)
	if err != nil {
		return errs.IO(errs.PhaseWrite, w.path, err)
	}

	stream, err := newCompressWriter(file, w.opts.compression)
	if err != nil {
		file.Close()
		return errs.IO(errs.PhaseWrite, w.path, err)
	}

	w.file = file
	w.stream = stream
	w.buf = bufio.NewWriterSize(stream, w.opts.bufferSize)
	return nil
}

// Write appends one record.
func (w *Writer[T]) Write(rec T) error {
	if w.file == nil {
		if err := w.Create(); err != nil {
			return err
		}
	}

	if _, err := w.buf.WriteString(w.encode(rec)); err != nil {
		return errs.IO(errs.PhaseWrite, w.path, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return errs.IO(errs.PhaseWrite, w.path, err)
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer[T]) Count() int64 {
	return w.count
}

// Path returns the destination path.
func (w *Writer[T]) Path() string {
	return w.path
}

// Opened reports whether the file has been created.
func (w *Writer[T]) Opened() bool {
	return w.file != nil
}

// Close flushes buffered lines and closes the file; an atomic writer then
// renames its temp file over the target. Flush and rename failures are
// IOErrors, a failing close of the handle is a ResourceError. Closing a
// writer that never wrote is a no-op.
func (w *Writer[T]) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}

	var flushErr error
	if err := w.buf.Flush(); err != nil {
		flushErr = errs.IO(errs.PhaseWrite, w.path, err)
	} else if err := w.stream.Close(); err != nil {
		flushErr = errs.IO(errs.PhaseWrite, w.path, err)
	}

	closeErr := w.file.Close()
	w.file = nil

	if flushErr != nil {
		if w.tmpPath != "" {
			os.Remove(w.tmpPath)
		}
		return flushErr
	}
	if closeErr != nil {
		return errs.Resource(errs.PhaseWrite, w.path, closeErr)
	}

	if w.tmpPath != "" {
		if err := os.Rename(w.tmpPath, w.path); err != nil {
			os.Remove(w.tmpPath)
			return errs.IO(errs.PhaseWrite, w.path, err)
		}
	}
	return nil
}

// Abort closes the file without flushing. An atomic writer removes its
// temp file and leaves the target untouched; a plain writer leaves
// whatever reached the disk in place.
func (w *Writer[T]) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil
	if w.tmpPath != "" {
		if rmErr := os.Remove(w.tmpPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	if err != nil {
		return errs.Resource(errs.PhaseWrite, w.path, err)
	}
	return nil
}
