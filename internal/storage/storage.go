// Package storage owns the auditor's SQLite database: connection setup,
// schema, and the repository registration table. The cache and task stores
// layer their queries on top of the same *DB.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/repoaudit/repoaudit/internal/types"
)

// DB wraps the underlying sql.DB so dependent packages don't each open
// their own connection pool.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the auditor database at path.
// WAL mode keeps concurrent per-file cache writes from serializing on a
// whole-database lock.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Handle exposes the raw sql.DB for the stores built on top of this package.
func (d *DB) Handle() *sql.DB {
	return d.db
}

// RegisterRepo inserts a repo record with its pinned identity hash.
// Registering the same identity hash twice returns the existing record
// untouched: the pin is never silently replaced.
func (d *DB) RegisterRepo(ctx context.Context, name, path, identityHash string) (*types.RepoRecord, error) {
	if existing, err := d.GetRepoByHash(ctx, identityHash); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	rec := &types.RepoRecord{
		ID:           uuid.New().String(),
		Name:         name,
		Path:         path,
		IdentityHash: identityHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO repos (id, name, path, identity_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.Name, rec.Path, rec.IdentityHash, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to register repo: %w", err)
	}

	return rec, nil
}

// GetRepoByHash looks up a repo by its pinned identity hash.
// Returns nil, nil when not registered.
func (d *DB) GetRepoByHash(ctx context.Context, identityHash string) (*types.RepoRecord, error) {
	return d.scanRepo(d.db.QueryRowContext(ctx, `
		SELECT id, name, path, identity_hash, last_scanned_at, created_at
		FROM repos WHERE identity_hash = ?
	`, identityHash))
}

// GetRepoByPath looks up a repo by the path it was registered under.
// Returns nil, nil when not registered.
func (d *DB) GetRepoByPath(ctx context.Context, path string) (*types.RepoRecord, error) {
	return d.scanRepo(d.db.QueryRowContext(ctx, `
		SELECT id, name, path, identity_hash, last_scanned_at, created_at
		FROM repos WHERE path = ?
	`, path))
}

// ListRepos returns all registered repositories ordered by name.
func (d *DB) ListRepos(ctx context.Context) ([]*types.RepoRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, path, identity_hash, last_scanned_at, created_at
		FROM repos ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list repos: %w", err)
	}
	defer rows.Close()

	var repos []*types.RepoRecord
	for rows.Next() {
		rec, err := d.scanRepoRows(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repos: %w", err)
	}
	return repos, nil
}

// TouchRepoScanned records when a repository was last scanned.
func (d *DB) TouchRepoScanned(ctx context.Context, identityHash string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE repos SET last_scanned_at = ? WHERE identity_hash = ?
	`, at.UTC(), identityHash)
	if err != nil {
		return fmt.Errorf("failed to update last_scanned_at: %w", err)
	}
	return nil
}

// SaveSession persists the summary of a finished (or halted) scan session.
func (d *DB) SaveSession(ctx context.Context, s *types.SessionSummary) error {
	var completed any
	if !s.CompletedAt.IsZero() {
		completed = s.CompletedAt.UTC()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scan_sessions
			(id, repo_hash, state, files_scanned, files_skipped_cached,
			 files_failed, tasks_created, tokens_used, cost_estimate,
			 started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.SessionID, s.RepoHash, string(s.FinalState), s.FilesScanned,
		s.FilesSkippedCached, s.FilesFailed, s.TasksCreated, s.TokensUsed,
		s.CostEstimate, s.StartedAt.UTC(), completed)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LastSession returns the most recent session for a repo, or nil, nil if the
// repo has never been scanned.
func (d *DB) LastSession(ctx context.Context, repoHash string) (*types.SessionSummary, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, repo_hash, state, files_scanned, files_skipped_cached,
		       files_failed, tasks_created, tokens_used, cost_estimate,
		       started_at, completed_at
		FROM scan_sessions
		WHERE repo_hash = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, repoHash)

	var s types.SessionSummary
	var state string
	var completed sql.NullTime
	err := row.Scan(&s.SessionID, &s.RepoHash, &state, &s.FilesScanned,
		&s.FilesSkippedCached, &s.FilesFailed, &s.TasksCreated, &s.TokensUsed,
		&s.CostEstimate, &s.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	s.FinalState = types.SessionState(state)
	s.Halted = s.FinalState == types.SessionBudgetHalted
	if completed.Valid {
		s.CompletedAt = completed.Time
	}
	return &s, nil
}

func (d *DB) scanRepo(row *sql.Row) (*types.RepoRecord, error) {
	var rec types.RepoRecord
	var lastScanned sql.NullTime
	err := row.Scan(&rec.ID, &rec.Name, &rec.Path, &rec.IdentityHash, &lastScanned, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repo: %w", err)
	}
	if lastScanned.Valid {
		rec.LastScannedAt = lastScanned.Time
	}
	return &rec, nil
}

func (d *DB) scanRepoRows(rows *sql.Rows) (*types.RepoRecord, error) {
	var rec types.RepoRecord
	var lastScanned sql.NullTime
	err := rows.Scan(&rec.ID, &rec.Name, &rec.Path, &rec.IdentityHash, &lastScanned, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan repo row: %w", err)
	}
	if lastScanned.Valid {
		rec.LastScannedAt = lastScanned.Time
	}
	return &rec, nil
}
