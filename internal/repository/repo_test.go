package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := openSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepo(db)
}

func TestUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	rec := &CacheRecord{
		ID:              "h1",
		PossibleQueries: []string{"first"},
		SourceURL:       "https://example.com/1",
		CachedAt:        time.Unix(1700000000, 0),
	}
	require.NoError(t, r.UpsertCached(ctx, rec))

	got, err := r.FindCachedByID(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/1", got.SourceURL)
	assert.Equal(t, []string{"first"}, got.PossibleQueries)
	assert.Equal(t, int64(1700000000), got.CachedAt.Unix())

	got, err = r.FindCachedByQuery(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.ID)
}

func TestFindNotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.FindCachedByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.FindCachedByQuery(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertKeepsKnownTitle(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	require.NoError(t, r.UpsertCached(ctx, &CacheRecord{ID: "h", SourceURL: "u", PossibleQueries: []string{"a"}}))
	require.NoError(t, r.UpsertCached(ctx, &CacheRecord{ID: "h", SourceURL: "u", Title: "One", DurationSeconds: 5, PossibleQueries: []string{"b"}}))
	require.NoError(t, r.UpsertCached(ctx, &CacheRecord{ID: "h", SourceURL: "u", Title: "Two", DurationSeconds: 9, PossibleQueries: []string{"a"}}))

	got, err := r.FindCachedByID(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "One", got.Title)
	assert.Equal(t, 5, got.DurationSeconds)
	assert.Equal(t, []string{"a", "b"}, got.PossibleQueries)
}

func TestAddCachedQuery(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	require.NoError(t, r.UpsertCached(ctx, &CacheRecord{ID: "h", SourceURL: "u", PossibleQueries: []string{"a"}}))

	require.NoError(t, r.AddCachedQuery(ctx, "h", "b"))
	require.NoError(t, r.AddCachedQuery(ctx, "h", "b"))
	assert.ErrorIs(t, r.AddCachedQuery(ctx, "nope", "b"), ErrNotFound)

	got, err := r.FindCachedByID(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.PossibleQueries)
	assert.True(t, got.HasQuery("b"))
}

func TestSuggestQueries(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	require.NoError(t, r.UpsertCached(ctx, &CacheRecord{ID: "1", SourceURL: "u1", PossibleQueries: []string{"daft punk", "daft_punk"}}))
	require.NoError(t, r.UpsertCached(ctx, &CacheRecord{ID: "2", SourceURL: "u2", PossibleQueries: []string{"dafter", "muse"}}))

	got, err := r.SuggestQueries(ctx, "daft", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"daft punk", "daft_punk", "dafter"}, got)

	got, err = r.SuggestQueries(ctx, "daft_", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"daft_punk"}, got)

	got, err = r.SuggestQueries(ctx, "daft", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
