// Package tasks is the task store and grouping layer. The auditor core
// only creates tasks; status transitions (pending -> in_progress -> done)
// belong to the consumers driving the work.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/repoaudit/repoaudit/internal/storage"
	"github.com/repoaudit/repoaudit/internal/types"
)

// Store persists tasks in the shared SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore creates a task store on top of the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db.Handle()}
}

// Create inserts a new task, assigning an ID and timestamps if unset.
func (s *Store) Create(ctx context.Context, t *types.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = types.TaskPending
	}
	if t.Priority < 1 || t.Priority > 4 {
		return fmt.Errorf("invalid priority %d (must be 1-4)", t.Priority)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
			(id, title, description, priority, status, source, source_repo,
			 source_file, source_line, category, fingerprint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, t.Priority, string(t.Status), string(t.Source),
		t.SourceRepo, t.SourceFile, t.SourceLine, t.Category, t.Fingerprint,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get returns the task with the given id, or nil, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// FindOpenByFingerprint returns an open (not done) task with the given
// fingerprint, or nil, nil when no such task exists. This is the
// deduplication lookup: at most one open task per fingerprint.
func (s *Store) FindOpenByFingerprint(ctx context.Context, fingerprint string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+`
		WHERE fingerprint = ? AND status != 'done'
		ORDER BY created_at ASC
		LIMIT 1
	`, fingerprint)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up task by fingerprint: %w", err)
	}
	return t, nil
}

// ListOpen returns all tasks not yet done for a repo (all repos when
// repoHash is empty), ordered by priority then creation time.
func (s *Store) ListOpen(ctx context.Context, repoHash string) ([]*types.Task, error) {
	query := taskSelect + ` WHERE status != 'done'`
	args := []any{}
	if repoHash != "" {
		query += ` AND source_repo = ?`
		args = append(args, repoHash)
	}
	query += ` ORDER BY priority ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var result []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return result, nil
}

// CountOpen returns the number of open tasks for a repo.
func (s *Store) CountOpen(ctx context.Context, repoHash string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks WHERE status != 'done' AND source_repo = ?
	`, repoHash).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// validTransitions encodes the task lifecycle. Anything not listed is
// rejected.
var validTransitions = map[types.TaskStatus][]types.TaskStatus{
	types.TaskPending:    {types.TaskInProgress, types.TaskDone},
	types.TaskInProgress: {types.TaskPending, types.TaskDone},
}

// UpdateStatus transitions a task through the lifecycle, rejecting
// transitions the state machine doesn't allow (done is terminal).
func (s *Store) UpdateStatus(ctx context.Context, id string, status types.TaskStatus) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("task not found: %s", id)
	}

	allowed := false
	for _, next := range validTransitions[t.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("invalid status transition %s -> %s for task %s", t.Status, status, id)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

const taskSelect = `
	SELECT id, title, description, priority, status, source, source_repo,
	       source_file, source_line, category, fingerprint, created_at, updated_at
	FROM tasks`

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*types.Task, error) {
	var t types.Task
	var status, source string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &status, &source,
		&t.SourceRepo, &t.SourceFile, &t.SourceLine, &t.Category, &t.Fingerprint,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = types.TaskStatus(status)
	t.Source = types.TaskSource(source)
	return &t, nil
}
