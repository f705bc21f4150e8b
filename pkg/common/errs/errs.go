// Package errs defines the failure taxonomy of the sort pipeline.
//
// Every error returned by chunker, sorter and merge is an *Error carrying
// the phase and path that failed. Callers branch on the kind with
// errors.Is(err, errs.ErrIO) and still reach the underlying cause
// (for example fs.ErrNotExist) through the same chain.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks invalid parameters rejected before any work starts.
	ErrConfig = errors.New("config error")
	// ErrIO marks open, create, read, write or rename failures.
	ErrIO = errors.New("io error")
	// ErrParse marks a line that does not decode into a record.
	ErrParse = errors.New("parse error")
	// ErrResource marks a failure releasing a reader or writer.
	ErrResource = errors.New("resource error")
)

// Kind classifies an Error.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindIO
	KindParse
	KindResource
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindIO:
		return ErrIO
	case KindParse:
		return ErrParse
	case KindResource:
		return ErrResource
	default:
		return nil
	}
}

// String returns the kind name used in metrics and logs.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Pipeline phases reported in errors.
const (
	PhaseConfig = "config"
	PhaseChunk  = "chunk"
	PhaseSort   = "sort"
	PhaseMerge  = "merge"
	PhaseRead   = "read"
	PhaseWrite  = "write"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind  Kind
	Phase string
	Path  string
	// Line is the 1-based line number for parse errors, 0 otherwise.
	Line int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Phase
	if e.Path != "" {
		msg += ": " + e.Path
		if e.Line > 0 {
			msg += fmt.Sprintf(":%d", e.Line)
		}
	}
	msg += ": " + e.Kind.String() + " error"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	var errs []error
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Config returns a configuration error for the given phase.
func Config(phase, format string, args ...any) error {
	return &Error{Kind: KindConfig, Phase: phase, Err: fmt.Errorf(format, args...)}
}

// IO wraps an I/O failure on path.
func IO(phase, path string, err error) error {
	return &Error{Kind: KindIO, Phase: phase, Path: path, Err: err}
}

// Parse wraps a decode failure at path:line.
func Parse(phase, path string, line int, err error) error {
	return &Error{Kind: KindParse, Phase: phase, Path: path, Line: line, Err: err}
}

// Resource wraps a release failure on path.
func Resource(phase, path string, err error) error {
	return &Error{Kind: KindResource, Phase: phase, Path: path, Err: err}
}

// WithPhase re-labels a classified error raised by a lower layer (for
// example the record reader) with the phase that observed it. Errors that
// are not *Error are returned unchanged. Only the innermost *Error is
// kept: text added around it with fmt.Errorf is dropped, so callers pass
// lower-layer errors through unwrapped.
func WithPhase(err error, phase string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	cp.Phase = phase
	return &cp
}

// KindOf reports the kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
