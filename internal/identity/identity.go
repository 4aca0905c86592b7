// Package identity computes stable repository identity hashes. The hash is
// the cache namespace for all per-file analysis results, so it must not
// depend on where the repository happens to be mounted: the same physical
// repository checked out at /home/a/src and /mnt/b/src hashes identically.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/repoaudit/repoaudit/internal/storage"
	"github.com/repoaudit/repoaudit/internal/types"
)

// ErrPathUnavailable signals that no intrinsic identity could be derived
// for the repository (no git remote, not a git checkout). It is a cue to
// fall back to path hashing, not a fatal error.
var ErrPathUnavailable = errors.New("no intrinsic repository identity available")

// Identifier derives identity hashes for repositories.
type Identifier struct {
	// gitTimeout bounds the git subprocess calls used to read the remote.
	gitTimeout time.Duration
}

// New creates an Identifier with sane defaults.
func New() *Identifier {
	return &Identifier{gitTimeout: 10 * time.Second}
}

// Compute derives the intrinsic identity hash for the repository at path:
// the origin remote URL combined with the sorted top-level listing, hashed
// with SHA-256. Returns ErrPathUnavailable when the repository has no
// usable intrinsic identity, in which case callers should pin PathHash
// instead.
func (i *Identifier) Compute(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat repository path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository path is not a directory: %s", path)
	}

	remote, err := i.originURL(ctx, path)
	if err != nil {
		return "", err
	}

	listing, err := topLevelListing(path)
	if err != nil {
		return "", fmt.Errorf("failed to list repository root: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(normalizeRemote(remote)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(listing, "\n")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PathHash is the fallback derivation: a hash of the cleaned absolute path.
// It is only stable on one machine, which is why it must be pinned once in
// the repo record and never recomputed with a different strategy later.
func PathHash(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the pinned identity hash for the repository at path,
// registering it on first sight. The pin wins over any recomputation: once
// a repo record exists its hash is returned as-is, even if the fallback
// strategy that produced it would no longer be chosen today.
func (i *Identifier) Resolve(ctx context.Context, db *storage.DB, name, path string) (*types.RepoRecord, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}

	if rec, err := db.GetRepoByPath(ctx, abs); err != nil {
		return nil, err
	} else if rec != nil {
		return rec, nil
	}

	hash, err := i.Compute(ctx, abs)
	if errors.Is(err, ErrPathUnavailable) {
		hash = PathHash(abs)
	} else if err != nil {
		return nil, err
	}

	if name == "" {
		name = filepath.Base(abs)
	}
	return db.RegisterRepo(ctx, name, abs, hash)
}

// originURL reads the origin remote for the checkout at path.
func (i *Identifier) originURL(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return "", ErrPathUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, i.gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", path, "remote", "get-url", "origin")
	out, err := cmd.Output()
	if err != nil {
		// No remote configured, or git missing entirely. Either way there
		// is nothing intrinsic to hash.
		return "", ErrPathUnavailable
	}

	url := strings.TrimSpace(string(out))
	if url == "" {
		return "", ErrPathUnavailable
	}
	return url, nil
}

// normalizeRemote strips the cosmetic differences between equivalent remote
// URLs (trailing .git, trailing slash, ssh vs https forms of the same host).
func normalizeRemote(url string) string {
	url = strings.TrimSpace(url)
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")

	// git@host:org/repo -> host/org/repo
	if strings.HasPrefix(url, "git@") {
		url = strings.TrimPrefix(url, "git@")
		url = strings.Replace(url, ":", "/", 1)
	}
	for _, prefix := range []string{"https://", "http://", "ssh://git@", "ssh://"} {
		url = strings.TrimPrefix(url, prefix)
	}
	return strings.ToLower(url)
}

// topLevelListing returns the sorted names of the repository's root
// entries, minus volatile ones that differ between otherwise identical
// checkouts.
func topLevelListing(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		switch name {
		case ".git", ".audit-cache", "node_modules", "target", "dist", "build":
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
