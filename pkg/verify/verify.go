// Package verify checks the output of a sort against its input without
// holding either file in memory.
package verify

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

const ctxCheckInterval = 4096

// Summary is an order-independent fingerprint of a record file plus an
// ordering check.
type Summary struct {
	Path    string
	Records int64
	// Sum and Xor fold the xxhash64 of every encoded record. Both are
	// independent of record order.
	Sum uint64
	Xor uint64
	// Sorted is true when no record compares less than its predecessor.
	Sorted bool
	// FirstUnsortedLine is the 1-based line of the first record that breaks
	// ascending order, 0 when Sorted.
	FirstUnsortedLine int
}

// SameMultiset reports whether both files likely hold the same records
// with the same multiplicities.
func (s Summary) SameMultiset(other Summary) bool {
	return s.Records == other.Records && s.Sum == other.Sum && s.Xor == other.Xor
}

func (s Summary) String() string {
	order := "sorted"
	if !s.Sorted {
		order = fmt.Sprintf("unsorted at line %d", s.FirstUnsortedLine)
	}
	return fmt.Sprintf("%s: %d records, fingerprint %016x/%016x, %s", s.Path, s.Records, s.Sum, s.Xor, order)
}

// Fingerprint reads path once and summarizes it.
func Fingerprint[T any](ctx context.Context, path string, format record.Format[T], opts ...recordio.Option) (sum Summary, err error) {
	r, err := recordio.Open(path, format.Decode, opts...)
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sum = Summary{Path: path, Sorted: true}
	var prev T
	for r.Next() {
		if sum.Records%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Summary{}, err
			}
		}

		rec := r.Record()
		h := xxhash.Sum64String(format.Encode(rec))
		sum.Sum += h
		sum.Xor ^= h

		if sum.Records > 0 && sum.Sorted && format.Compare(rec, prev) < 0 {
			sum.Sorted = false
			sum.FirstUnsortedLine = r.Line()
		}
		prev = rec
		sum.Records++
	}
	if err := r.Err(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Compare fingerprints input and output and returns an error describing
// the first mismatch: a different multiset of records, or an output that
// is not in ascending order.
func Compare[T any](ctx context.Context, inputPath, outputPath string, format record.Format[T], inputOpts, outputOpts []recordio.Option) (in, out Summary, err error) {
	if in, err = Fingerprint(ctx, inputPath, format, inputOpts...); err != nil {
		return in, out, err
	}
	if out, err = Fingerprint(ctx, outputPath, format, outputOpts...); err != nil {
		return in, out, err
	}

	if !in.SameMultiset(out) {
		return in, out, fmt.Errorf("%w: input has %d records, output has %d", ErrMismatch, in.Records, out.Records)
	}
	if !out.Sorted {
		return in, out, fmt.Errorf("%w: %s line %d", ErrUnsorted, outputPath, out.FirstUnsortedLine)
	}
	return in, out, nil
}
