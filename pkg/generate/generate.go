// Package generate writes synthetic person files for exercising the sort.
package generate

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

const (
	// MaxID is the exclusive upper bound of generated IDs.
	MaxID int64 = 9999999999999999

	// birthWindowDays spans the last 100 years of birth dates.
	birthWindowDays = 100 * 365

	progressInterval = 1_000_000
)

// Option configures People.
type Option func(*settings)

type settings struct {
	seed   uint64
	seeded bool
	now    func() time.Time
	io     []recordio.Option
	logger log.Logger
}

// WithSeed makes the output reproducible.
func WithSeed(seed uint64) Option {
	return func(s *settings) {
		s.seed = seed
		s.seeded = true
	}
}

// WithClock sets the reference time for birth dates.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithIOOptions sets the writer options for the generated file.
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

// People writes count random people to path and returns how many were
// written. IDs are unique within the file and drawn from [0, MaxID).
// The file is created (and truncated) even when count is 0.
func People(ctx context.Context, path string, count int64, opts ...Option) (written int64, err error) {
	if count < 0 {
		return 0, errs.Config(errs.PhaseWrite, "row count must not be negative, got %d", count)
	}

	s := settings{now: time.Now, logger: log.Component("generate")}
	for _, opt := range opts {
		opt(&s)
	}
	if !s.seeded {
		s.seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))

	today := s.now().UTC().Truncate(24 * time.Hour)
	seen := make(map[int64]struct{}, count)

	w := recordio.NewWriter(path, record.FormatPerson, s.io...)
	defer func() {
		if err != nil {
			w.Abort()
			written = 0
			return
		}
		if cerr := w.Close(); cerr != nil {
			written, err = 0, cerr
		}
	}()
	if err := w.Create(); err != nil {
		return 0, err
	}

	start := time.Now()
	for written < count {
		if written%progressInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			if written > 0 {
				s.logger.Debug("generated %d of %d people", written, count)
			}
		}

		p := record.Person{
			ID:             uniqueID(rng, seen),
			Name:           firstNames[rng.IntN(len(firstNames))] + " " + lastNames[rng.IntN(len(lastNames))],
			DateOfBirth:    today.AddDate(0, 0, -rng.IntN(birthWindowDays)),
			CountryOfBirth: countries[rng.IntN(len(countries))],
		}
		if err := w.Write(p); err != nil {
			return 0, err
		}
		written++
	}

	s.logger.Info("generated %d people into %s in %s", written, path, time.Since(start))
	return written, nil
}

func uniqueID(rng *rand.Rand, seen map[int64]struct{}) int64 {
	for {
		id := rng.Int64N(MaxID)
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			return id
		}
	}
}
