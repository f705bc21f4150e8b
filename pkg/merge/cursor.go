package merge

import (
	"github.com/hashicorp/go-multierror"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

// CursorState is the position of a cursor within its chunk.
type CursorState int

const (
	// CursorPending has been opened but not primed yet.
	CursorPending CursorState = iota
	// CursorReady holds a current record.
	CursorReady
	// CursorExhausted has no records left. It is terminal.
	CursorExhausted
)

func (s CursorState) String() string {
	switch s {
	case CursorPending:
		return "pending"
	case CursorReady:
		return "ready"
	case CursorExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Cursor is the merge-time read position in one sorted chunk.
type Cursor[T any] struct {
	index   int
	reader  *recordio.Reader[T]
	state   CursorState
	current T
}

// OpenCursor opens the chunk at path as cursor number index. The cursor
// starts Pending; call Advance to prime it.
func OpenCursor[T any](index int, path string, decode record.DecodeFunc[T], opts ...recordio.Option) (*Cursor[T], error) {
	reader, err := recordio.Open(path, decode, opts...)
	if err != nil {
		return nil, errs.WithPhase(err, errs.PhaseMerge)
	}
	return &Cursor[T]{index: index, reader: reader}, nil
}

// Index is the position of the cursor's chunk in the merge input list.
func (c *Cursor[T]) Index() int {
	return c.index
}

// Path is the chunk file the cursor reads.
func (c *Cursor[T]) Path() string {
	return c.reader.Path()
}

// State reports whether the cursor holds a record.
func (c *Cursor[T]) State() CursorState {
	return c.state
}

// Current returns the record the cursor is positioned on. It is the zero
// value unless State is CursorReady.
func (c *Cursor[T]) Current() T {
	return c.current
}

// Advance moves to the next record, or to CursorExhausted at the end of
// the chunk. A read or decode failure also exhausts the cursor and is
// returned.
func (c *Cursor[T]) Advance() error {
	if c.state == CursorExhausted {
		return nil
	}
	if c.reader.Next() {
		c.current = c.reader.Record()
		c.state = CursorReady
		return nil
	}

	var zero T
	c.current = zero
	c.state = CursorExhausted
	if err := c.reader.Err(); err != nil {
		return errs.WithPhase(err, errs.PhaseMerge)
	}
	return nil
}

// Close releases the chunk file. The cursor is exhausted afterwards.
func (c *Cursor[T]) Close() error {
	c.state = CursorExhausted
	if err := c.reader.Close(); err != nil {
		return errs.WithPhase(err, errs.PhaseMerge)
	}
	return nil
}

// AllExhausted reports whether no cursor holds a record: the merge's
// terminal condition.
func AllExhausted[T any](cursors []*Cursor[T]) bool {
	for _, c := range cursors {
		if c.state != CursorExhausted {
			return false
		}
	}
	return true
}

// closeAll releases every cursor and collects all release failures.
func closeAll[T any](cursors []*Cursor[T]) error {
	var result *multierror.Error
	for _, c := range cursors {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
