// Package synth converts analysis findings into deduplicated, prioritized
// tasks. Each finding maps to at most one open task: a fingerprint derived
// from the finding's stable attributes prevents re-scans of unchanged code
// from filing the same work twice.
package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/repoaudit/repoaudit/internal/types"
)

// TaskStore is the slice of the task store the synthesizer needs: create
// and duplicate-lookup. Status transitions belong to external consumers.
type TaskStore interface {
	Create(ctx context.Context, t *types.Task) error
	FindOpenByFingerprint(ctx context.Context, fingerprint string) (*types.Task, error)
}

// Synthesizer emits tasks from findings.
type Synthesizer struct {
	store TaskStore
}

// New creates a synthesizer writing to the given task store.
func New(store TaskStore) *Synthesizer {
	return &Synthesizer{store: store}
}

// EmitFileFindings files tasks for per-file findings, returning the number
// of tasks actually created (duplicates are skipped silently).
func (s *Synthesizer) EmitFileFindings(ctx context.Context, repoHash, filePath string, findings []types.Finding) (int, error) {
	return s.emit(ctx, repoHash, filePath, types.SourceFileScan, findings)
}

// EmitProjectFindings files tasks for the aggregate project-review pass.
// These findings are not attributable to a single file.
func (s *Synthesizer) EmitProjectFindings(ctx context.Context, repoHash string, findings []types.Finding) (int, error) {
	return s.emit(ctx, repoHash, "", types.SourceProjectReview, findings)
}

func (s *Synthesizer) emit(ctx context.Context, repoHash, filePath string, source types.TaskSource, findings []types.Finding) (int, error) {
	created := 0
	for i := range findings {
		f := &findings[i]

		path := f.FilePath
		if path == "" {
			path = filePath
		}

		fp := Fingerprint(path, f.LineRange(), f.Category, f.Description)

		existing, err := s.store.FindOpenByFingerprint(ctx, fp)
		if err != nil {
			return created, fmt.Errorf("failed to check for duplicate task: %w", err)
		}
		if existing != nil {
			continue
		}

		task := &types.Task{
			Title:       taskTitle(f),
			Description: taskDescription(f),
			Priority:    f.Severity.Priority(),
			Status:      types.TaskPending,
			Source:      source,
			SourceRepo:  repoHash,
			SourceFile:  path,
			SourceLine:  f.LineStart,
			Category:    f.Category,
			Fingerprint: fp,
		}
		if err := s.store.Create(ctx, task); err != nil {
			return created, fmt.Errorf("failed to create task: %w", err)
		}
		created++
	}
	return created, nil
}

// Fingerprint derives the deduplication key for a finding. Description
// text is normalized (lowercased, whitespace collapsed) so cosmetic
// rephrasings of the same finding don't defeat deduplication.
func Fingerprint(filePath, lineRange, category, description string) string {
	h := sha256.New()
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write([]byte(lineRange))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(category)))
	h.Write([]byte{0})
	h.Write([]byte(normalizeText(description)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeText lowercases and collapses all runs of whitespace to single
// spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

const maxTitleLen = 120

// taskTitle derives a short title from the finding description.
func taskTitle(f *types.Finding) string {
	title := strings.TrimSpace(f.Description)
	if idx := strings.IndexAny(title, ".\n"); idx > 0 && idx < maxTitleLen {
		title = title[:idx]
	}
	if len(title) > maxTitleLen {
		cut := maxTitleLen - 3
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut] + "..."
	}
	if f.Category != "" {
		title = fmt.Sprintf("[%s] %s", f.Category, title)
	}
	return title
}

// taskDescription assembles the full task body: description, location,
// and suggestion when present.
func taskDescription(f *types.Finding) string {
	var b strings.Builder
	b.WriteString(f.Description)

	if f.FilePath != "" {
		b.WriteString("\n\nLocation: ")
		b.WriteString(f.FilePath)
		if lr := f.LineRange(); lr != "" {
			b.WriteString(":")
			b.WriteString(lr)
		}
	}

	if f.Suggestion != "" {
		b.WriteString("\n\nSuggested fix: ")
		b.WriteString(f.Suggestion)
	}

	b.WriteString(fmt.Sprintf("\n\nSeverity: %s", f.Severity))
	return b.String()
}
