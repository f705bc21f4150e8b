package merge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

func person(id int64, name string) string {
	return fmt.Sprintf("%d,%s,1980-05-17,Chile", id, name)
}

func writeChunk(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	if len(data) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func newPersonMerger(opts ...Option) *Merger[record.Person] {
	return New(record.People(), append([]Option{WithLogger(log.NewNopLogger())}, opts...)...)
}

var strategies = []config.MergeStrategy{config.MergeHeap, config.MergeScan}

func TestMergeScenario(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			dir := t.TempDir()
			first := filepath.Join(dir, "c-1.csv")
			second := filepath.Join(dir, "c-2.csv")
			out := filepath.Join(dir, "out.csv")
			writeChunk(t, first, person(1, "a"), person(3, "c"), person(5, "e"))
			writeChunk(t, second, person(2, "b"), person(4, "d"))

			n, err := newPersonMerger(WithStrategy(strategy)).Merge(context.Background(), []string{first, second}, out)
			require.NoError(t, err)
			require.Equal(t, int64(5), n)
			require.Equal(t, []string{
				person(1, "a"), person(2, "b"), person(3, "c"), person(4, "d"), person(5, "e"),
			}, readLines(t, out))
		})
	}
}

func TestMergeTiesFollowChunkOrder(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			dir := t.TempDir()
			first := filepath.Join(dir, "c-1.csv")
			second := filepath.Join(dir, "c-2.csv")
			out := filepath.Join(dir, "out.csv")
			writeChunk(t, first, person(7, "from-first"))
			writeChunk(t, second, person(7, "from-second"))

			m := newPersonMerger(WithStrategy(strategy))
			_, err := m.Merge(context.Background(), []string{first, second}, out)
			require.NoError(t, err)
			require.Equal(t, []string{person(7, "from-first"), person(7, "from-second")}, readLines(t, out))

			// Order is by position in the chunk list, not by file name.
			_, err = m.Merge(context.Background(), []string{second, first}, out)
			require.NoError(t, err)
			require.Equal(t, []string{person(7, "from-second"), person(7, "from-first")}, readLines(t, out))
		})
	}
}

func TestMergeNoChunksCreatesEmptyOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.csv")
	writeChunk(t, out, "stale", "content")

	n, err := newPersonMerger().Merge(context.Background(), nil, out)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Zero(t, info.Size())
}

func TestMergeSkipsEmptyChunks(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "c-1.csv")
	full := filepath.Join(dir, "c-2.csv")
	out := filepath.Join(dir, "out.csv")
	writeChunk(t, empty)
	writeChunk(t, full, person(1, "a"), person(2, "b"))

	n, err := newPersonMerger().Merge(context.Background(), []string{empty, full}, out)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Equal(t, []string{person(1, "a"), person(2, "b")}, readLines(t, out))
}

func TestMergeMissingChunk(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "c-1.csv")
	missing := filepath.Join(dir, "c-2.csv")
	out := filepath.Join(dir, "out.csv")
	writeChunk(t, present, person(1, "a"))
	writeChunk(t, out, "previous")

	n, err := newPersonMerger().Merge(context.Background(), []string{present, missing}, out)
	require.Error(t, err)
	require.Zero(t, n)
	require.True(t, errors.Is(err, errs.ErrIO))
	require.True(t, errors.Is(err, fs.ErrNotExist))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, errs.PhaseMerge, e.Phase)
	require.Equal(t, missing, e.Path)

	// The output was never opened.
	require.Equal(t, []string{"previous"}, readLines(t, out))
}

func TestMergeParseErrorNamesChunkAndLine(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "c-1.csv")
	bad := filepath.Join(dir, "c-2.csv")
	out := filepath.Join(dir, "out.csv")
	writeChunk(t, good, person(1, "a"), person(5, "e"))
	writeChunk(t, bad, person(2, "b"), "not a person")

	n, err := newPersonMerger().Merge(context.Background(), []string{good, bad}, out)
	require.Error(t, err)
	require.Zero(t, n)
	require.True(t, errors.Is(err, errs.ErrParse))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, bad, e.Path)
	require.Equal(t, 2, e.Line)
	require.Equal(t, errs.PhaseMerge, e.Phase)
}

func TestMergeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "c-1.csv")
	second := filepath.Join(dir, "c-2.csv")
	out := filepath.Join(dir, "out.csv")
	writeChunk(t, first, person(2, "b"), person(9, "i"))
	writeChunk(t, second, person(1, "a"), person(4, "d"))

	m := newPersonMerger()
	_, err := m.Merge(context.Background(), []string{first, second}, out)
	require.NoError(t, err)
	once, err := os.ReadFile(out)
	require.NoError(t, err)

	_, err = m.Merge(context.Background(), []string{first, second}, out)
	require.NoError(t, err)
	twice, err := os.ReadFile(out)
	require.NoError(t, err)

	require.Equal(t, once, twice)
}

func TestMergeCancelled(t *testing.T) {
	dir := t.TempDir()
	chunk := filepath.Join(dir, "c-1.csv")
	out := filepath.Join(dir, "out.csv")
	writeChunk(t, chunk, person(1, "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := newPersonMerger().Merge(ctx, []string{chunk}, out)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, n)
}

func TestMergeStrategiesAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	dir := t.TempDir()

	var chunks []string
	var all []string
	for i := 1; i <= 12; i++ {
		n := rng.IntN(40)
		lines := make([]string, 0, n)
		for j := 0; j < n; j++ {
			lines = append(lines, fmt.Sprintf("%06d-%02d", rng.IntN(500), i))
		}
		slices.SortFunc(lines, func(a, b string) int { return strings.Compare(a[:6], b[:6]) })
		path := filepath.Join(dir, fmt.Sprintf("c-%d.txt", i))
		writeChunk(t, path, lines...)
		chunks = append(chunks, path)
		all = append(all, lines...)
	}

	// Key is the numeric prefix; the suffix records the source chunk.
	format := record.Lines()
	format.Compare = func(a, b string) int { return strings.Compare(a[:6], b[:6]) }

	var outputs [][]string
	for _, strategy := range strategies {
		out := filepath.Join(dir, "out-"+string(strategy)+".txt")
		n, err := New(format, WithStrategy(strategy), WithLogger(log.NewNopLogger())).
			Merge(context.Background(), chunks, out)
		require.NoError(t, err)
		require.Equal(t, int64(len(all)), n)
		outputs = append(outputs, readLines(t, out))
	}
	require.Equal(t, outputs[0], outputs[1])

	got := outputs[0]
	require.ElementsMatch(t, all, got)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1][:6], got[i][:6])
		if got[i-1][:6] == got[i][:6] {
			require.LessOrEqual(t, got[i-1][7:], got[i][7:], "equal keys must keep chunk order")
		}
	}
}

func TestMergeCompressedChunks(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "c-1.zst")
	second := filepath.Join(dir, "c-2.zst")
	out := filepath.Join(dir, "out.zst")
	ioOpts := []recordio.Option{recordio.WithCompression(config.CompressionZstd)}

	for path, ids := range map[string][]int{first: {1, 4}, second: {2, 3}} {
		w := recordio.NewWriter(path, strconvItoa, ioOpts...)
		for _, id := range ids {
			require.NoError(t, w.Write(id))
		}
		require.NoError(t, w.Close())
	}

	format := record.Format[int]{Encode: strconvItoa, Decode: strconvAtoi, Compare: record.ByKey(func(n int) int { return n })}
	n, err := New(format, WithIOOptions(ioOpts...), WithLogger(log.NewNopLogger())).
		Merge(context.Background(), []string{first, second}, out)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)

	got, err := recordio.ReadAll(out, strconvAtoi, ioOpts...)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, got)
}

var errDiskGone = errors.New("disk gone")

func failingRelease(cursors []*Cursor[record.Person]) error {
	if err := closeAll(cursors); err != nil {
		return err
	}
	return errs.Resource(errs.PhaseMerge, "c-1.csv", errDiskGone)
}

func TestReleaseFailureDoesNotMaskParseError(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			dir := t.TempDir()
			first := filepath.Join(dir, "c-1.csv")
			second := filepath.Join(dir, "c-2.csv")
			writeChunk(t, first, person(1, "a"), person(4, "d"))
			writeChunk(t, second, person(2, "b"), "2,broken")

			var logs strings.Builder
			m := New(record.People(),
				WithStrategy(strategy),
				WithLogger(log.NewStandardLogger(log.WithOutput(&logs))),
			)
			m.release = failingRelease

			total, err := m.Merge(context.Background(), []string{first, second}, filepath.Join(dir, "out.csv"))
			require.Zero(t, total)
			require.True(t, errors.Is(err, errs.ErrParse), "got %v", err)
			require.False(t, errors.Is(err, errs.ErrResource))
			require.False(t, errors.Is(err, errDiskGone))

			var e *errs.Error
			require.True(t, errors.As(err, &e))
			require.Equal(t, second, e.Path)
			require.Equal(t, 2, e.Line)

			require.Contains(t, logs.String(), "failed to release chunk readers after merge failure")
			require.Contains(t, logs.String(), "disk gone")
		})
	}
}

func TestReleaseFailureIsReturnedWhenMergeSucceeded(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "c-1.csv")
	second := filepath.Join(dir, "c-2.csv")
	writeChunk(t, first, person(1, "a"))
	writeChunk(t, second, person(2, "b"))

	m := newPersonMerger()
	m.release = failingRelease

	total, err := m.Merge(context.Background(), []string{first, second}, filepath.Join(dir, "out.csv"))
	require.Zero(t, total)
	require.True(t, errors.Is(err, errs.ErrResource), "got %v", err)
	require.True(t, errors.Is(err, errDiskGone))
}

func TestReleaseFailureDoesNotMaskOpenError(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "c-1.csv")
	writeChunk(t, first, person(1, "a"))

	var logs strings.Builder
	m := New(record.People(), WithLogger(log.NewStandardLogger(log.WithOutput(&logs))))
	m.release = failingRelease

	_, err := m.Merge(context.Background(), []string{first, filepath.Join(dir, "missing.csv")}, filepath.Join(dir, "out.csv"))
	require.True(t, errors.Is(err, errs.ErrIO), "got %v", err)
	require.True(t, errors.Is(err, fs.ErrNotExist))
	require.False(t, errors.Is(err, errDiskGone))
	require.Contains(t, logs.String(), "disk gone")
}
