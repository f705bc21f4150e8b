package sorter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

func writeChunk(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func person(id int64, name string) string {
	return fmt.Sprintf("%d,%s,1980-05-17,Chile", id, name)
}

func newPersonSorter(opts ...Option) *Sorter[record.Person] {
	return New(record.People(), append([]Option{WithLogger(log.NewNopLogger())}, opts...)...)
}

func TestSortChunkScenario(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "c-1.csv")
	second := filepath.Join(dir, "c-2.csv")
	writeChunk(t, first, person(5, "e"), person(3, "c"), person(1, "a"))
	writeChunk(t, second, person(4, "d"), person(2, "b"))

	require.NoError(t, newPersonSorter().SortChunks(context.Background(), []string{first, second}))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Equal(t, person(1, "a")+"\n"+person(3, "c")+"\n"+person(5, "e")+"\n", string(data))

	data, err = os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, person(2, "b")+"\n"+person(4, "d")+"\n", string(data))
}

func TestSortChunkIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c-1.csv")
	writeChunk(t, path, person(7, "first"), person(2, "x"), person(7, "second"), person(7, "third"))

	require.NoError(t, newPersonSorter().SortChunk(context.Background(), path))

	people, err := recordio.ReadAll(path, record.ParsePerson)
	require.NoError(t, err)
	names := make([]string, len(people))
	for i, p := range people {
		names[i] = p.Name
	}
	require.Equal(t, []string{"x", "first", "second", "third"}, names)
}

func TestSortChunksParallelRejectsBadParallelism(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c-1.csv")
	writeChunk(t, path, person(2, "b"), person(1, "a"))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s := newPersonSorter()
	for _, p := range []int{-1, 0, 11, 100} {
		err := s.SortChunksParallel(context.Background(), []string{path}, p)
		require.True(t, errors.Is(err, errs.ErrConfig), "parallelism %d", p)
	}

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after, "no chunk may be touched on a config error")
}

func TestSortChunksParallelIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	contents := make([][]string, 12)
	for i := range contents {
		for j := 0; j < 200; j++ {
			// Few distinct keys so ties are common.
			contents[i] = append(contents[i], person(rng.Int64N(20), fmt.Sprintf("n%d_%d", i, j)))
		}
	}

	sortWith := func(p int) [][]byte {
		dir := t.TempDir()
		paths := make([]string, len(contents))
		for i, lines := range contents {
			paths[i] = filepath.Join(dir, fmt.Sprintf("c-%d.csv", i+1))
			writeChunk(t, paths[i], lines...)
		}
		require.NoError(t, newPersonSorter().SortChunksParallel(context.Background(), paths, p))

		out := make([][]byte, len(paths))
		for i, path := range paths {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			out[i] = data
		}
		return out
	}

	baseline := sortWith(1)
	for _, p := range []int{2, 5, 10} {
		require.Equal(t, baseline, sortWith(p), "parallelism %d", p)
	}
}

func TestSortChunksParallelBoundsConcurrency(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 1; i <= 20; i++ {
		path := filepath.Join(dir, fmt.Sprintf("c-%d.csv", i))
		writeChunk(t, path, person(int64(i), "x"))
		paths = append(paths, path)
	}

	var running, peak atomic.Int32
	format := record.People()
	decode := format.Decode
	format.Decode = func(line string) (record.Person, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return decode(line)
	}

	s := New(format, WithLogger(log.NewNopLogger()))
	require.NoError(t, s.SortChunksParallel(context.Background(), paths, 3))
	require.LessOrEqual(t, peak.Load(), int32(3))
	require.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestSortChunksParallelSurfacesFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "c-1.csv")
	writeChunk(t, good, person(2, "b"), person(1, "a"))
	missing := filepath.Join(dir, "c-2.csv")

	err := newPersonSorter().SortChunksParallel(context.Background(), []string{good, missing}, 1)
	require.True(t, errors.Is(err, errs.ErrIO))
	require.True(t, errors.Is(err, fs.ErrNotExist))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, errs.PhaseSort, e.Phase)
	require.Equal(t, missing, e.Path)
}

func TestSortChunkParseFailureKeepsChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c-1.csv")
	writeChunk(t, path, person(2, "b"), "bogus")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = newPersonSorter().SortChunk(context.Background(), path)
	require.True(t, errors.Is(err, errs.ErrParse))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestSortChunksParallelRecoversPanics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c-1.csv")

	format := record.People()
	format.Compare = func(a, b record.Person) int { panic("boom") }
	writeChunk(t, path, person(2, "b"), person(1, "a"))

	err := New(format, WithLogger(log.NewNopLogger())).SortChunksParallel(context.Background(), []string{path}, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "panic: boom")
}

func TestSortObserverSeesEveryChunk(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 1; i <= 4; i++ {
		path := filepath.Join(dir, fmt.Sprintf("c-%d.csv", i))
		writeChunk(t, path, person(2, "b"), person(1, "a"))
		paths = append(paths, path)
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var failures []error
	s := newPersonSorter(WithObserver(func(path string, records int, _ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, err)
		}
		seen[path] = records
	}))

	require.NoError(t, s.SortChunksParallel(context.Background(), paths, 4))
	require.Empty(t, failures)
	require.Len(t, seen, 4)
	for _, path := range paths {
		require.Equal(t, 2, seen[path])
	}
}

func TestSortChunksParallelCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c-1.csv")
	writeChunk(t, path, person(2, "b"), person(1, "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newPersonSorter().SortChunksParallel(ctx, []string{path}, 2)
	require.ErrorIs(t, err, context.Canceled)
}
