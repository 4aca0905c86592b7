package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoaudit/repoaudit/internal/storage"
)

func TestPathHashDeterministic(t *testing.T) {
	a := PathHash("/home/user/project")
	b := PathHash("/home/user/project")
	c := PathHash("/home/user/project/") // Clean() collapses the trailing slash

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	assert.NotEqual(t, a, PathHash("/home/user/other"))
	assert.Len(t, a, 64)
}

func TestNormalizeRemote(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"https", "https://github.com/org/repo"},
		{"https with .git", "https://github.com/org/repo.git"},
		{"ssh scp form", "git@github.com:org/repo.git"},
		{"ssh url form", "ssh://git@github.com/org/repo"},
		{"trailing slash", "https://github.com/org/repo/"},
		{"mixed case host", "https://GitHub.com/org/repo"},
	}

	expected := normalizeRemote("https://github.com/org/repo")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, expected, normalizeRemote(tt.url),
				"equivalent remotes must normalize identically")
		})
	}

	assert.NotEqual(t, expected, normalizeRemote("https://github.com/org/other"))
}

func TestComputeFallsBackWithoutGit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644))

	_, err := New().Compute(context.Background(), dir)
	assert.ErrorIs(t, err, ErrPathUnavailable,
		"a plain directory has no intrinsic identity")
}

func TestComputeRejectsMissingPath(t *testing.T) {
	_, err := New().Compute(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPathUnavailable, "a missing path is a real error, not a fallback cue")
}

func TestTopLevelListingSkipsVolatile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"src", "node_modules", "target", ".audit-cache"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x"), 0644))

	listing, err := topLevelListing(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"go.mod", "src"}, listing)
}

func TestResolvePinsIdentity(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644))

	ctx := context.Background()
	id := New()

	first, err := id.Resolve(ctx, db, "", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), first.Name)
	assert.NotEmpty(t, first.IdentityHash)

	// Repeated resolution returns the pinned record, not a recomputation.
	second, err := id.Resolve(ctx, db, "ignored", dir)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.IdentityHash, second.IdentityHash)
}
