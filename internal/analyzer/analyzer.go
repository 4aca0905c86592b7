// Package analyzer sends source files to the Anthropic API and turns the
// responses into structured findings. The orchestrator only sees the
// Analyzer interface; everything API-specific (retries, rate limiting,
// response parsing) stays behind it.
package analyzer

import (
	"context"
	"errors"

	"github.com/repoaudit/repoaudit/internal/types"
)

// ErrFileTooComplex is the fatal (non-retriable) per-file failure class:
// the analyzer has concluded this file cannot be analyzed, so retrying is
// pointless. The scan records the failure and moves on.
var ErrFileTooComplex = errors.New("file could not be analyzed")

// Usage is the token consumption of one API call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns combined input and output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// FileRequest asks for analysis of a single file.
type FileRequest struct {
	RepoName string
	FilePath string
	Content  []byte
	Depth    types.Depth
}

// ProjectRequest asks for the end-of-session aggregate review.
type ProjectRequest struct {
	RepoName string
	// FindingDigest summarizes the per-file findings collected during the
	// session, so the review can reason about cross-cutting patterns.
	FindingDigest string
	FilesScanned  int
}

// Result carries the findings and token usage of one analysis call.
type Result struct {
	Findings []types.Finding
	Usage    Usage
	Model    string
}

// Analyzer is the contract between the scan orchestrator and the LLM
// backend. An error return means the file (or review) produced no result;
// it never carries partial findings.
type Analyzer interface {
	// AnalyzeFile analyzes one file's content and returns its findings.
	AnalyzeFile(ctx context.Context, req FileRequest) (*Result, error)

	// ReviewProject performs the aggregate project-level review at the end
	// of a session.
	ReviewProject(ctx context.Context, req ProjectRequest) (*Result, error)

	// Model returns the model identifier used for cache attribution.
	Model() string
}

// IsRetriable reports whether an analysis error is transient (rate limit,
// server error, network) and worth retrying, as opposed to a permanent
// failure for this input.
func IsRetriable(err error) bool {
	if errors.Is(err, ErrFileTooComplex) {
		return false
	}
	return isRetriableError(err)
}
