package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveindex/driveindex/internal/tree"
)

func seedTree(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()

	for _, p := range []string{"Docs", "Docs/Work", "Photos", "Photos/2024"} {
		require.NoError(t, s.UpsertFolder(ctx, p, p, []byte(p)))
	}

	for _, p := range []string{"readme.md", "Docs/plan_v2.txt", "Docs/Work/report.pdf", "Photos/2024/beach.jpg", "Docs/100%.txt"} {
		require.NoError(t, s.UpsertFile(ctx, p, p, []byte(p)))
	}
}

func paths(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.FullPath)
	}

	return out
}

func TestChildren_Root(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTree(t, s)

	rows, err := s.Children(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs", "Photos", "readme.md"}, paths(rows))
	assert.Equal(t, tree.KindFolder, rows[0].Kind)
	assert.Equal(t, tree.KindFile, rows[2].Kind)
}

func TestChildren_Nested(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTree(t, s)

	rows, err := s.Children(context.Background(), "Docs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs/Work", "Docs/100%.txt", "Docs/plan_v2.txt"}, paths(rows))
}

func TestSearch(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTree(t, s)
	ctx := context.Background()

	rows, err := s.Search(ctx, "REPORT", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs/Work/report.pdf"}, paths(rows))

	// Wildcards in user text match literally.
	rows, err = s.Search(ctx, "100%", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs/100%.txt"}, paths(rows))

	rows, err = s.Search(ctx, "n_v", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs/plan_v2.txt"}, paths(rows))

	rows, err = s.Search(ctx, "Docs", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSearch_NormalizesQuery(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	// Stored NFC ("é" as U+00E9); queried NFD ("e" + U+0301).
	require.NoError(t, s.UpsertFile(ctx, "caf\u00e9.txt", "caf\u00e9.txt", []byte{1}))

	rows, err := s.Search(ctx, "cafe\u0301", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"caf\u00e9.txt"}, paths(rows))
}

func TestSearch_MatchesDecomposedStoredPaths(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	// Stored NFD, as some remotes report names; queried NFC.
	require.NoError(t, s.UpsertFolder(ctx, "Cafe\u0301", "Cafe\u0301", []byte{1}))
	require.NoError(t, s.UpsertFile(ctx, "Cafe\u0301/menu.txt", "menu.txt", []byte{2}))

	rows, err := s.Search(ctx, "Caf\u00e9", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cafe\u0301", "Cafe\u0301/menu.txt"}, paths(rows))

	rows, err = s.Search(ctx, "Cafe\u0301/m", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cafe\u0301/menu.txt"}, paths(rows))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTree(t, s)
	ctx := context.Background()

	row, ok, err := s.Lookup(ctx, "Photos/2024")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tree.KindFolder, row.Kind)

	_, ok, err = s.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
