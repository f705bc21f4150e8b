package merge

import (
	"container/heap"

	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/record"
)

// selector picks the cursor holding the smallest record. Ties go to the
// cursor with the lowest index.
type selector[T any] interface {
	// next returns the winning cursor, or nil when every cursor is exhausted.
	next() *Cursor[T]
	// advanced is called after the cursor returned by next has moved.
	advanced(c *Cursor[T])
}

func newSelector[T any](strategy config.MergeStrategy, compare record.CompareFunc[T], cursors []*Cursor[T]) selector[T] {
	if strategy == config.MergeScan {
		return &scanSelector[T]{compare: compare, cursors: cursors}
	}
	return newHeapSelector(compare, cursors)
}

// scanSelector inspects every live cursor per record. The current winner
// is only replaced by a strictly smaller record, so the first cursor in
// index order wins a tie.
type scanSelector[T any] struct {
	compare record.CompareFunc[T]
	cursors []*Cursor[T]
}

func (s *scanSelector[T]) next() *Cursor[T] {
	var best *Cursor[T]
	for _, c := range s.cursors {
		if c.state != CursorReady {
			continue
		}
		if best == nil || s.compare(c.current, best.current) < 0 {
			best = c
		}
	}
	return best
}

func (s *scanSelector[T]) advanced(*Cursor[T]) {}

// heapSelector keeps live cursors in a min-heap ordered by (record, index).
type heapSelector[T any] struct {
	h cursorHeap[T]
}

func newHeapSelector[T any](compare record.CompareFunc[T], cursors []*Cursor[T]) *heapSelector[T] {
	h := cursorHeap[T]{compare: compare}
	for _, c := range cursors {
		if c.state == CursorReady {
			h.items = append(h.items, c)
		}
	}
	heap.Init(&h)
	return &heapSelector[T]{h: h}
}

func (s *heapSelector[T]) next() *Cursor[T] {
	if len(s.h.items) == 0 {
		return nil
	}
	return s.h.items[0]
}

func (s *heapSelector[T]) advanced(c *Cursor[T]) {
	if c.state == CursorReady {
		heap.Fix(&s.h, 0)
		return
	}
	heap.Pop(&s.h)
}

type cursorHeap[T any] struct {
	compare record.CompareFunc[T]
	items   []*Cursor[T]
}

func (h *cursorHeap[T]) Len() int { return len(h.items) }

func (h *cursorHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.compare(a.current, b.current); c != 0 {
		return c < 0
	}
	return a.index < b.index
}

func (h *cursorHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *cursorHeap[T]) Push(x any) { h.items = append(h.items, x.(*Cursor[T])) }

func (h *cursorHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return c
}
