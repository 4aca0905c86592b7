package synth

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoaudit/repoaudit/internal/types"
)

// memStore is an in-memory TaskStore for synthesizer tests.
type memStore struct {
	tasks []*types.Task
}

func (m *memStore) Create(_ context.Context, t *types.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = types.TaskPending
	}
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *memStore) FindOpenByFingerprint(_ context.Context, fp string) (*types.Task, error) {
	for _, t := range m.tasks {
		if t.Fingerprint == fp && t.Status != types.TaskDone {
			return t, nil
		}
	}
	return nil, nil
}

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint("src/main.go", "10-15", "bug", "Unchecked   error return")
	b := Fingerprint("src/main.go", "10-15", "bug", "unchecked error\n\treturn")
	assert.Equal(t, a, b, "case and whitespace differences must not change the fingerprint")

	c := Fingerprint("src/main.go", "10-15", "bug", "something else entirely")
	assert.NotEqual(t, a, c)

	d := Fingerprint("src/other.go", "10-15", "bug", "Unchecked error return")
	assert.NotEqual(t, a, d, "different files must not collide")

	e := Fingerprint("src/main.go", "20", "bug", "Unchecked error return")
	assert.NotEqual(t, a, e, "different lines must not collide")
}

func TestEmitFileFindings(t *testing.T) {
	store := &memStore{}
	s := New(store)

	findings := []types.Finding{
		{
			Severity:    types.SeverityCritical,
			Category:    "security",
			Description: "SQL built by string concatenation in loadUser",
			LineStart:   42,
			LineEnd:     48,
			Suggestion:  "Use parameterized queries",
		},
		{
			Severity:    types.SeverityLow,
			Category:    "maintainability",
			Description: "Function runScan is 300 lines long",
			LineStart:   10,
		},
	}

	created, err := s.EmitFileFindings(context.Background(), "repohash", "src/db.go", findings)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	require.Len(t, store.tasks, 2)

	critical := store.tasks[0]
	assert.Equal(t, 1, critical.Priority)
	assert.Equal(t, types.SourceFileScan, critical.Source)
	assert.Equal(t, "repohash", critical.SourceRepo)
	assert.Equal(t, "src/db.go", critical.SourceFile)
	assert.Equal(t, 42, critical.SourceLine)
	assert.Contains(t, critical.Title, "security")
	assert.Contains(t, critical.Description, "Suggested fix:")

	assert.Equal(t, 4, store.tasks[1].Priority)
}

func TestEmitDeduplicates(t *testing.T) {
	store := &memStore{}
	s := New(store)

	finding := []types.Finding{{
		Severity:    types.SeverityHigh,
		Category:    "bug",
		Description: "Nil map write in cache warmup",
		LineStart:   5,
	}}

	created, err := s.EmitFileFindings(context.Background(), "repohash", "a.go", finding)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// Re-scan of the unchanged finding is a no-op.
	created, err = s.EmitFileFindings(context.Background(), "repohash", "a.go", finding)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, store.tasks, 1)
}

func TestEmitDeduplicatesAcrossWhitespace(t *testing.T) {
	store := &memStore{}
	s := New(store)

	first := []types.Finding{{
		Severity: types.SeverityMedium, Category: "bug",
		Description: "Race on counter field", LineStart: 7,
	}}
	second := []types.Finding{{
		Severity: types.SeverityMedium, Category: "bug",
		Description: "race  on\tcounter field", LineStart: 7,
	}}

	_, err := s.EmitFileFindings(context.Background(), "repohash", "a.go", first)
	require.NoError(t, err)
	created, err := s.EmitFileFindings(context.Background(), "repohash", "a.go", second)
	require.NoError(t, err)

	assert.Equal(t, 0, created, "whitespace-only description differences are the same task")
	assert.Len(t, store.tasks, 1)
}

func TestEmitProjectFindings(t *testing.T) {
	store := &memStore{}
	s := New(store)

	created, err := s.EmitProjectFindings(context.Background(), "repohash", []types.Finding{{
		Severity:    types.SeverityHigh,
		Category:    "architecture",
		Description: "Error handling is inconsistent between the http and grpc layers",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	task := store.tasks[0]
	assert.Equal(t, types.SourceProjectReview, task.Source)
	assert.Empty(t, task.SourceFile)
	assert.Equal(t, 2, task.Priority)
}

func TestTaskTitleTruncation(t *testing.T) {
	long := types.Finding{
		Category:    "bug",
		Description: "This sentence has no early period and keeps going well past the maximum title length so it must be truncated with an ellipsis to stay readable in list output and not overflow the table column",
	}
	title := taskTitle(&long)
	assert.LessOrEqual(t, len(title), maxTitleLen+len("[bug] "))
	assert.Contains(t, title, "...")

	short := types.Finding{Description: "Fix the leak. More detail follows here."}
	assert.Equal(t, "Fix the leak", taskTitle(&short))
}

func TestTaskTitleTruncatesOnRuneBoundary(t *testing.T) {
	multibyte := types.Finding{
		Category:    "naming",
		Description: strings.Repeat("é", 200),
	}
	title := taskTitle(&multibyte)
	assert.True(t, utf8.ValidString(title), "truncation must never split a rune")
	assert.Contains(t, title, "...")
}
