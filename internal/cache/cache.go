// Package cache persists per-file analysis results keyed by
// (repo hash, file path, content hash). A hit means the file has not
// changed since it was last analyzed and its findings can be replayed for
// free; anything else is a miss that costs an analyzer call.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/repoaudit/repoaudit/internal/storage"
	"github.com/repoaudit/repoaudit/internal/types"
)

// Entry is one file's cached analysis result.
type Entry struct {
	RepoHash    string          `json:"repo_hash"`
	FilePath    string          `json:"file_path"`
	ContentHash string          `json:"content_hash"`
	Findings    []types.Finding `json:"findings"`
	Model       string          `json:"model"`
	TokensUsed  int64           `json:"tokens_used"`
	AnalyzedAt  time.Time       `json:"analyzed_at"`
}

// Stats summarizes cache effectiveness for one repo namespace.
type Stats struct {
	Entries     int     `json:"entries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	TokensSaved int64   `json:"tokens_saved"`
}

// HitRate returns the hit percentage, or 0 when the cache has never been
// consulted.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// FileDigest pairs a repo-relative path with the hash of its current
// content, as produced during traversal.
type FileDigest struct {
	Path        string
	ContentHash string
}

// Store is the cache backed by the shared SQLite database. Writes to
// distinct (repo_hash, file_path) keys never interfere; the same key is
// last-write-wins.
type Store struct {
	db *sql.DB
}

// NewStore creates a cache store on top of the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db.Handle()}
}

// HashContent computes the SHA-256 content hash used for staleness checks.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached entry for (repoHash, path), or nil when absent.
// A row whose findings blob fails to decode is treated as a miss, never a
// fatal error: the next analysis simply overwrites it.
func (s *Store) Get(ctx context.Context, repoHash, path string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_hash, findings, model, tokens_used, analyzed_at
		FROM file_cache
		WHERE repo_hash = ? AND file_path = ?
	`, repoHash, path)

	entry := &Entry{RepoHash: repoHash, FilePath: path}
	var findingsJSON string
	err := row.Scan(&entry.ContentHash, &findingsJSON, &entry.Model, &entry.TokensUsed, &entry.AnalyzedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(findingsJSON), &entry.Findings); err != nil {
		// Corrupt entry: report a miss so the file gets re-analyzed.
		fmt.Fprintf(os.Stderr, "warning: corrupt cache entry for %s (treating as miss): %v\n", path, err)
		return nil, nil
	}

	return entry, nil
}

// GetFresh returns the entry only when its content hash matches the file's
// current hash, and updates the hit/miss counters accordingly.
func (s *Store) GetFresh(ctx context.Context, repoHash, path, contentHash string) (*Entry, error) {
	entry, err := s.Get(ctx, repoHash, path)
	if err != nil {
		return nil, err
	}
	if entry == nil || IsStale(entry, contentHash) {
		s.recordMiss(ctx, repoHash)
		return nil, nil
	}
	s.recordHit(ctx, repoHash, entry.TokensUsed)
	return entry, nil
}

// Put writes an entry, overwriting any previous row for the same key.
func (s *Store) Put(ctx context.Context, entry *Entry) error {
	findingsJSON, err := json.Marshal(entry.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	if entry.AnalyzedAt.IsZero() {
		entry.AnalyzedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO file_cache
			(repo_hash, file_path, content_hash, findings, model, tokens_used, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.RepoHash, entry.FilePath, entry.ContentHash, string(findingsJSON),
		entry.Model, entry.TokensUsed, entry.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// IsStale reports whether the entry no longer matches the file's current
// content.
func IsStale(entry *Entry, currentContentHash string) bool {
	return entry.ContentHash != currentContentHash
}

// ListGaps returns the subset of files that lack a fresh cache entry, in
// the order given. The result is finite and the call is restartable:
// running it again after some gaps were filled returns only the remainder.
func (s *Store) ListGaps(ctx context.Context, repoHash string, files []FileDigest) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, content_hash FROM file_cache WHERE repo_hash = ?
	`, repoHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	cached := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		cached[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache rows: %w", err)
	}

	var gaps []string
	for _, f := range files {
		if hash, ok := cached[f.Path]; !ok || hash != f.ContentHash {
			gaps = append(gaps, f.Path)
		}
	}
	return gaps, nil
}

// Stats returns cache statistics for one repo namespace.
func (s *Store) Stats(ctx context.Context, repoHash string) (Stats, error) {
	var stats Stats

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM file_cache WHERE repo_hash = ?
	`, repoHash).Scan(&stats.Entries)
	if err != nil {
		return stats, fmt.Errorf("failed to count cache entries: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT hits, misses, tokens_saved FROM cache_stats WHERE repo_hash = ?
	`, repoHash).Scan(&stats.Hits, &stats.Misses, &stats.TokensSaved)
	if err != nil && err != sql.ErrNoRows {
		return stats, fmt.Errorf("failed to read cache stats: %w", err)
	}

	return stats, nil
}

// Clear removes all entries and counters for one repo namespace.
func (s *Store) Clear(ctx context.Context, repoHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_cache WHERE repo_hash = ?`, repoHash); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_stats WHERE repo_hash = ?`, repoHash); err != nil {
		return fmt.Errorf("failed to clear cache stats: %w", err)
	}
	return nil
}

// Prune removes entries whose file no longer exists under root. Returns
// the number of entries removed.
func (s *Store) Prune(ctx context.Context, repoHash, root string) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path FROM file_cache WHERE repo_hash = ?
	`, repoHash)
	if err != nil {
		return 0, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return 0, fmt.Errorf("failed to scan cache row: %w", err)
		}
		if _, err := os.Stat(filepath.Join(root, path)); os.IsNotExist(err) {
			stale = append(stale, path)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating cache rows: %w", err)
	}

	for _, path := range stale {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM file_cache WHERE repo_hash = ? AND file_path = ?
		`, repoHash, path); err != nil {
			return 0, fmt.Errorf("failed to prune cache entry %s: %w", path, err)
		}
	}
	return len(stale), nil
}

// recordHit bumps the hit counter and credits the tokens the hit avoided
// re-spending. Counter updates are best-effort; a failure never fails the
// lookup.
func (s *Store) recordHit(ctx context.Context, repoHash string, tokensSaved int64) {
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO cache_stats (repo_hash, hits, misses, tokens_saved, updated_at)
		VALUES (?, 1, 0, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(repo_hash) DO UPDATE SET
			hits = hits + 1,
			tokens_saved = tokens_saved + excluded.tokens_saved,
			updated_at = CURRENT_TIMESTAMP
	`, repoHash, tokensSaved)
}

func (s *Store) recordMiss(ctx context.Context, repoHash string) {
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO cache_stats (repo_hash, hits, misses, tokens_saved, updated_at)
		VALUES (?, 0, 1, 0, CURRENT_TIMESTAMP)
		ON CONFLICT(repo_hash) DO UPDATE SET
			misses = misses + 1,
			updated_at = CURRENT_TIMESTAMP
	`, repoHash)
}
