package verify

import "errors"

var (
	// ErrMismatch means the output is not a permutation of the input.
	ErrMismatch = errors.New("output records differ from input")
	// ErrUnsorted means the output is not in ascending order.
	ErrUnsorted = errors.New("output is not sorted")
)
