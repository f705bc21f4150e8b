package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/verify"
)

func runArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestRunRequiresCommand(t *testing.T) {
	_, err := runArgs(t)
	require.True(t, errors.Is(err, errUsage))

	_, err = runArgs(t, "shuffle")
	require.True(t, errors.Is(err, errUsage))
}

func TestRunHelp(t *testing.T) {
	out, err := runArgs(t, "help")
	require.NoError(t, err)
	require.Contains(t, out, "chunksort sort -in PATH -out PATH")
}

func TestGenerateSortVerify(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "people.csv")
	out := filepath.Join(dir, "sorted.csv")
	chunks := filepath.Join(dir, "chunks")

	msg, err := runArgs(t, "generate", "-out", in, "-rows", "500", "-seed", "7")
	require.NoError(t, err)
	require.Contains(t, msg, "Added 500 rows to file in ")
	require.Contains(t, msg, in)

	msg, err = runArgs(t, "sort", "-in", in, "-out", out,
		"-chunk-size", "64", "-parallel", "3", "-chunk-dir", chunks)
	require.NoError(t, err)
	require.Contains(t, msg, "Chunked into 8 files in ")
	require.Contains(t, msg, "Sorted 8 files in ")
	require.Contains(t, msg, "Merged 500 rows to file in ")

	entries, err := os.ReadDir(chunks)
	require.NoError(t, err)
	require.Len(t, entries, 8)

	msg, err = runArgs(t, "verify", "-in", in, "-out", out)
	require.NoError(t, err)
	require.Contains(t, msg, "Verified 500 rows")
}

func TestSortRemovesChunksWhenAsked(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "people.csv")
	out := filepath.Join(dir, "sorted.csv.zst")
	chunks := filepath.Join(dir, "chunks")

	_, err := runArgs(t, "generate", "-out", in, "-rows", "200", "-seed", "1")
	require.NoError(t, err)

	_, err = runArgs(t, "sort", "-in", in, "-out", out, "-chunk-size", "50",
		"-chunk-dir", chunks, "-compression", "zstd", "-strategy", "scan", "-keep-chunks=false")
	require.NoError(t, err)

	entries, err := os.ReadDir(chunks)
	if err == nil {
		require.Empty(t, entries)
	}

	msg, err := runArgs(t, "verify", "-in", in, "-out", out, "-compression", "zstd")
	require.NoError(t, err)
	require.Contains(t, msg, "Verified 200 rows")
}

func TestSortRejectsBadFlags(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "people.csv")
	out := filepath.Join(dir, "sorted.csv")
	chunks := filepath.Join(dir, "chunks")
	require.NoError(t, os.WriteFile(in, []byte("1,Ada Lovelace,1815-12-10,United Kingdom\n"), 0644))

	_, err := runArgs(t, "sort", "-in", in)
	require.True(t, errors.Is(err, errUsage))

	_, err = runArgs(t, "sort", "-in", in, "-out", out, "-chunk-dir", chunks, "-parallel", "11")
	require.True(t, errors.Is(err, errs.ErrConfig))
	_, statErr := os.Stat(chunks)
	require.True(t, os.IsNotExist(statErr))

	_, err = runArgs(t, "sort", "-in", in, "-out", out, "-chunk-dir", chunks, "-strategy", "bubble")
	require.Error(t, err)

	_, err = runArgs(t, "sort", "-in", in, "-out", out, "-no-such-flag")
	require.True(t, errors.Is(err, errUsage))
}

func TestVerifyReportsUnsortedOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.csv")
	lines := []string{
		"2,Grace Hopper,1906-12-09,United States",
		"1,Alan Turing,1912-06-23,United Kingdom",
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	msg, err := runArgs(t, "verify", "-in", path, "-out", path)
	require.True(t, errors.Is(err, verify.ErrUnsorted))
	require.Contains(t, msg, "unsorted at line 2")
}

func TestGenerateRejectsNegativeRows(t *testing.T) {
	_, err := runArgs(t, "generate", "-out", filepath.Join(t.TempDir(), "p.csv"), "-rows", "-1")
	require.True(t, errors.Is(err, errs.ErrConfig))

	_, err = runArgs(t, "generate")
	require.True(t, errors.Is(err, errUsage))
}

func TestServeAcceptsDocumentedFlags(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := run(ctx, []string{"serve", "-address", "127.0.0.1:0", "-data-root", dir,
		"-chunk-dir", filepath.Join(dir, "chunks"), "-max-jobs", "1"}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "Listening on 127.0.0.1:")
	require.Contains(t, out.String(), "Server stopped")
	require.Contains(t, usageText, "[-data-root DIR] [-chunk-dir DIR]")

	_, err = runArgs(t, "serve", "-work-dir", dir)
	require.True(t, errors.Is(err, errUsage))
}

func TestSortRejectsPercentInChunkDir(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(in, []byte("1,Ada Lovelace,1815-12-10,United Kingdom\n"), 0644))

	_, err := runArgs(t, "sort", "-in", in, "-out", filepath.Join(dir, "out.csv"),
		"-chunk-dir", filepath.Join(dir, "100%d"))
	require.True(t, errors.Is(err, errs.ErrConfig), "got %v", err)
	_, statErr := os.Stat(filepath.Join(dir, "100%d"))
	require.True(t, os.IsNotExist(statErr))
}
