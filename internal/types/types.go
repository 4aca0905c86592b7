// Package types defines the core data model shared across the auditor:
// findings produced by analysis, tasks synthesized from findings, and the
// per-session scan state machine.
package types

import (
	"fmt"
	"time"
)

// Severity classifies how urgent a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Priority maps a severity onto the task priority scale (1 = highest,
// 4 = lowest). The mapping is monotonic: a more severe finding never
// produces a lower-urgency task than a less severe one.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 4
	default:
		// Unknown severities sink to the bottom rather than failing the scan.
		return 4
	}
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// ParseSeverity converts a string (as returned by the analyzer) into a
// Severity, defaulting to low for anything unrecognized.
func ParseSeverity(s string) Severity {
	sev := Severity(s)
	if sev.Valid() {
		return sev
	}
	return SeverityLow
}

// Finding is a single issue detected during analysis of one file or of the
// whole project. Findings are what the analyzer returns; the synthesizer
// turns them into tasks.
type Finding struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	FilePath    string   `json:"file_path,omitempty"`
	LineStart   int      `json:"line_start,omitempty"`
	LineEnd     int      `json:"line_end,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// LineRange returns the finding's line range in "start-end" form, or ""
// when the finding is not attributable to specific lines.
func (f *Finding) LineRange() string {
	if f.LineStart == 0 && f.LineEnd == 0 {
		return ""
	}
	if f.LineEnd == 0 || f.LineEnd == f.LineStart {
		return fmt.Sprintf("%d", f.LineStart)
	}
	return fmt.Sprintf("%d-%d", f.LineStart, f.LineEnd)
}

// TaskStatus represents the lifecycle state of a task. The auditor core
// only ever creates tasks; status transitions are performed by external
// consumers (CLI, IDE handoff).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// TaskSource records where a task came from.
type TaskSource string

const (
	// SourceFileScan marks tasks emitted while analyzing a single file.
	SourceFileScan TaskSource = "file_scan"
	// SourceProjectReview marks tasks from the end-of-session aggregate pass.
	SourceProjectReview TaskSource = "project_review"
	// SourceManual marks tasks entered by hand.
	SourceManual TaskSource = "manual"
)

// Task is a prioritized, deduplicated work item synthesized from findings.
// Ownership transfers to the task store on creation; the core never mutates
// a task afterwards except to detect duplicates by fingerprint.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"` // 1 = highest, 4 = lowest
	Status      TaskStatus `json:"status"`
	Source      TaskSource `json:"source"`
	SourceRepo  string     `json:"source_repo,omitempty"`
	SourceFile  string     `json:"source_file,omitempty"`
	SourceLine  int        `json:"source_line,omitempty"`
	Category    string     `json:"category,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SessionState is the scan session state machine:
// Pending -> Scanning -> {Completed | BudgetHalted | Failed}.
type SessionState string

const (
	SessionPending      SessionState = "pending"
	SessionScanning     SessionState = "scanning"
	SessionCompleted    SessionState = "completed"
	SessionBudgetHalted SessionState = "budget_halted"
	SessionFailed       SessionState = "failed"
)

// Terminal reports whether the session has reached a final state.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionCompleted, SessionBudgetHalted, SessionFailed:
		return true
	}
	return false
}

// SessionSummary is the progress report produced at the end of every scan
// session, including halted and failed ones. All termination paths report
// partial progress rather than rolling anything back.
type SessionSummary struct {
	SessionID          string       `json:"session_id"`
	RepoHash           string       `json:"repo_hash"`
	FilesScanned       int          `json:"files_scanned"`
	FilesSkippedCached int          `json:"files_skipped_cached"`
	FilesFailed        int          `json:"files_failed"`
	TasksCreated       int          `json:"tasks_created"`
	TokensUsed         int64        `json:"tokens_used"`
	CostEstimate       float64      `json:"cost_estimate"`
	Halted             bool         `json:"halted"`
	FinalState         SessionState `json:"final_state"`
	StartedAt          time.Time    `json:"started_at"`
	CompletedAt        time.Time    `json:"completed_at"`
}

// Depth controls how broadly a scan selects files and how much surrounding
// context is sent with each analysis request.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthCritical Depth = "critical"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// Valid reports whether d is a known analysis depth.
func (d Depth) Valid() bool {
	switch d {
	case DepthQuick, DepthCritical, DepthStandard, DepthDeep:
		return true
	}
	return false
}

// RepoRecord is a registered repository. IdentityHash is computed once at
// registration and pinned; it is never silently recomputed with a different
// derivation (that would fragment the cache namespace).
type RepoRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	IdentityHash  string    `json:"identity_hash"`
	LastScannedAt time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
