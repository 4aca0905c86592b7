package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoaudit/repoaudit/internal/storage"
	"github.com/repoaudit/repoaudit/internal/types"
)

func testStore(t *testing.T) (*Store, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), db
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("package main"))
	b := HashContent([]byte("package main"))
	c := HashContent([]byte("package other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestPutGet(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	entry := &Entry{
		RepoHash:    "repo1",
		FilePath:    "src/main.go",
		ContentHash: "abc123",
		Findings: []types.Finding{{
			Severity:    types.SeverityHigh,
			Category:    "bug",
			Description: "off-by-one in loop bound",
			LineStart:   12,
		}},
		Model:      "test-model",
		TokensUsed: 1500,
	}
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, "repo1", "src/main.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc123", got.ContentHash)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, types.SeverityHigh, got.Findings[0].Severity)
	assert.Equal(t, int64(1500), got.TokensUsed)
	assert.False(t, got.AnalyzedAt.IsZero())

	missing, err := store.Get(ctx, "repo1", "src/other.go")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPutOverwrites(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "r", FilePath: "a.go", ContentHash: "v1"}))
	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "r", FilePath: "a.go", ContentHash: "v2"}))

	got, err := store.Get(ctx, "r", "a.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.ContentHash, "same key is last-write-wins")
}

func TestCorruptEntryIsMiss(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()

	_, err := db.Handle().ExecContext(ctx, `
		INSERT INTO file_cache (repo_hash, file_path, content_hash, findings)
		VALUES ('r', 'broken.go', 'h', 'not json at all')
	`)
	require.NoError(t, err)

	got, err := store.Get(ctx, "r", "broken.go")
	require.NoError(t, err, "corruption is never a fatal error")
	assert.Nil(t, got, "corrupt entry reads as a miss")
}

func TestGetFreshAndStats(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Entry{
		RepoHash: "r", FilePath: "a.go", ContentHash: "h1", TokensUsed: 800,
	}))

	hit, err := store.GetFresh(ctx, "r", "a.go", "h1")
	require.NoError(t, err)
	assert.NotNil(t, hit)

	stale, err := store.GetFresh(ctx, "r", "a.go", "h2")
	require.NoError(t, err)
	assert.Nil(t, stale, "content hash mismatch is a miss")

	absent, err := store.GetFresh(ctx, "r", "new.go", "x")
	require.NoError(t, err)
	assert.Nil(t, absent)

	stats, err := store.Stats(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(800), stats.TokensSaved)
	assert.InDelta(t, 33.3, stats.HitRate(), 0.1)
}

func TestIsStale(t *testing.T) {
	e := &Entry{ContentHash: "h1"}
	assert.False(t, IsStale(e, "h1"))
	assert.True(t, IsStale(e, "h2"))
}

func TestListGaps(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "r", FilePath: "fresh.go", ContentHash: "h1"}))
	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "r", FilePath: "stale.go", ContentHash: "old"}))

	files := []FileDigest{
		{Path: "fresh.go", ContentHash: "h1"},
		{Path: "stale.go", ContentHash: "new"},
		{Path: "missing.go", ContentHash: "h3"},
	}

	gaps, err := store.ListGaps(ctx, "r", files)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale.go", "missing.go"}, gaps)

	// Restartable: filling a gap shrinks the next query's result.
	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "r", FilePath: "stale.go", ContentHash: "new"}))
	gaps, err = store.ListGaps(ctx, "r", files)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing.go"}, gaps)
}

func TestClear(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "r", FilePath: "a.go", ContentHash: "h"}))
	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "other", FilePath: "b.go", ContentHash: "h"}))

	require.NoError(t, store.Clear(ctx, "r"))

	stats, err := store.Stats(ctx, "r")
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)

	// Other namespaces are untouched.
	kept, err := store.Get(ctx, "other", "b.go")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestPrune(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "exists.go"), []byte("package x"), 0644))

	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "r", FilePath: "exists.go", ContentHash: "h"}))
	require.NoError(t, store.Put(ctx, &Entry{RepoHash: "r", FilePath: "deleted.go", ContentHash: "h"}))

	removed, err := store.Prune(ctx, "r", root)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	kept, err := store.Get(ctx, "r", "exists.go")
	require.NoError(t, err)
	assert.NotNil(t, kept)

	gone, err := store.Get(ctx, "r", "deleted.go")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
