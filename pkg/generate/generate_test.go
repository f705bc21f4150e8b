package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }

func TestPeopleAreValidAndUnique(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")

	n, err := People(context.Background(), path, 2000,
		WithSeed(1), WithClock(fixedNow), WithLogger(log.NewNopLogger()))
	require.NoError(t, err)
	require.Equal(t, int64(2000), n)

	people, err := recordio.ReadAll(path, record.ParsePerson)
	require.NoError(t, err)
	require.Len(t, people, 2000)

	oldest := fixedNow().AddDate(-100, 0, -1)
	ids := make(map[int64]bool, len(people))
	for _, p := range people {
		require.False(t, ids[p.ID], "duplicate id %d", p.ID)
		ids[p.ID] = true
		require.GreaterOrEqual(t, p.ID, int64(0))
		require.Less(t, p.ID, MaxID)
		require.False(t, p.DateOfBirth.After(fixedNow()))
		require.True(t, p.DateOfBirth.After(oldest))
		require.NotContains(t, p.Name, ",")
		require.NotEmpty(t, p.CountryOfBirth)
	}
}

func TestPeopleSeedIsReproducible(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")

	opts := []Option{WithSeed(99), WithClock(fixedNow), WithLogger(log.NewNopLogger())}
	_, err := People(context.Background(), a, 100, opts...)
	require.NoError(t, err)
	_, err = People(context.Background(), b, 100, opts...)
	require.NoError(t, err)

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestPeopleZeroRowsCreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")

	n, err := People(context.Background(), path, 0, WithLogger(log.NewNopLogger()))
	require.NoError(t, err)
	require.Zero(t, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(string(data)))
}

func TestPeopleRejectsNegativeCount(t *testing.T) {
	_, err := People(context.Background(), filepath.Join(t.TempDir(), "x.csv"), -1)
	require.Error(t, err)
}

func TestPeopleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := People(ctx, filepath.Join(t.TempDir(), "x.csv"), 10, WithLogger(log.NewNopLogger()))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, n)
}

func TestNameListsHaveNoCommas(t *testing.T) {
	for _, list := range [][]string{firstNames, lastNames, countries} {
		for _, s := range list {
			require.NotContains(t, s, ",")
		}
	}
}
