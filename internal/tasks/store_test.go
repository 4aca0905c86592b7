package tasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoaudit/repoaudit/internal/storage"
	"github.com/repoaudit/repoaudit/internal/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestCreateAndGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	task := &types.Task{
		Title:       "Fix nil deref in parser",
		Priority:    2,
		Source:      types.SourceFileScan,
		SourceRepo:  "hash",
		SourceFile:  "parser.go",
		Fingerprint: "fp-1",
	}
	require.NoError(t, store.Create(ctx, task))
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, types.TaskPending, task.Status)

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, types.SourceFileScan, got.Source)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateRejectsInvalidPriority(t *testing.T) {
	store := testStore(t)
	err := store.Create(context.Background(), &types.Task{Title: "t", Priority: 0, Fingerprint: "fp"})
	assert.Error(t, err)
	err = store.Create(context.Background(), &types.Task{Title: "t", Priority: 5, Fingerprint: "fp"})
	assert.Error(t, err)
}

func TestFindOpenByFingerprint(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	task := &types.Task{Title: "dup me", Priority: 3, Fingerprint: "fp-dup"}
	require.NoError(t, store.Create(ctx, task))

	found, err := store.FindOpenByFingerprint(ctx, "fp-dup")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, task.ID, found.ID)

	// A done task no longer blocks re-filing.
	require.NoError(t, store.UpdateStatus(ctx, task.ID, types.TaskDone))
	found, err = store.FindOpenByFingerprint(ctx, "fp-dup")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestListOpenOrdering(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &types.Task{Title: "low", Priority: 4, SourceRepo: "r", Fingerprint: "a"}))
	require.NoError(t, store.Create(ctx, &types.Task{Title: "crit", Priority: 1, SourceRepo: "r", Fingerprint: "b"}))
	require.NoError(t, store.Create(ctx, &types.Task{Title: "other-repo", Priority: 1, SourceRepo: "x", Fingerprint: "c"}))

	open, err := store.ListOpen(ctx, "r")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "crit", open[0].Title)
	assert.Equal(t, "low", open[1].Title)

	all, err := store.ListOpen(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := store.CountOpen(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStatusTransitions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	task := &types.Task{Title: "lifecycle", Priority: 3, Fingerprint: "fp-life"}
	require.NoError(t, store.Create(ctx, task))

	require.NoError(t, store.UpdateStatus(ctx, task.ID, types.TaskInProgress))
	require.NoError(t, store.UpdateStatus(ctx, task.ID, types.TaskDone))

	// Done is terminal.
	err := store.UpdateStatus(ctx, task.ID, types.TaskPending)
	assert.Error(t, err)

	err = store.UpdateStatus(ctx, "missing-id", types.TaskDone)
	assert.Error(t, err)
}
