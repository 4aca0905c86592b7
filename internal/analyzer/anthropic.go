package analyzer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/repoaudit/repoaudit/internal/types"
)

// Model constants. Sonnet carries standard and deep scans; Haiku is the
// cost-efficient choice for quick scans.
const (
	ModelSonnet = "claude-sonnet-4-5-20250929"
	ModelHaiku  = "claude-3-5-haiku-20241022"
)

// DefaultModel returns the model to use, checking REPOAUDIT_MODEL first.
func DefaultModel() string {
	if model := os.Getenv("REPOAUDIT_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// Config holds the analyzer client configuration.
type Config struct {
	APIKey         string      // If empty, reads ANTHROPIC_API_KEY
	Model          string      // Default: DefaultModel()
	MaxTokens      int64       // Max output tokens per call (default: 4096)
	Retry          RetryConfig // Uses DefaultRetryConfig() if zero
	MaxConcurrent  int         // Concurrent API calls (default: 3, 0 = use default)
	RequestsPerSec float64     // Client-side rate limit (default: 2, <0 = unlimited)
}

// Client implements Analyzer against the Anthropic API.
type Client struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	retry     RetryConfig
	breaker   *circuitBreaker
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
}

// NewClient creates an analyzer client.
func NewClient(cfg Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel()
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = 3
	}

	rps := cfg.RequestsPerSec
	if rps == 0 {
		rps = 2
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Client{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		retry:     retry,
		breaker:   newCircuitBreaker(retry),
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		limiter:   limiter,
	}, nil
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// findingPayload mirrors the JSON shape the model is asked to emit.
type findingPayload struct {
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	Suggestion  string `json:"suggestion"`
}

// AnalyzeFile analyzes one file and returns its findings.
func (c *Client) AnalyzeFile(ctx context.Context, req FileRequest) (*Result, error) {
	prompt := buildFilePrompt(req)

	response, err := c.complete(ctx, "file analysis", prompt)
	if err != nil {
		return nil, err
	}

	payloads, err := parseResponse[[]findingPayload](responseText(response), fmt.Sprintf("analysis of %s", req.FilePath))
	if err != nil {
		// The model answered but not with usable findings. Not transient:
		// the same file will likely fail the same way.
		return nil, fmt.Errorf("%w: %v", ErrFileTooComplex, err)
	}

	result := &Result{
		Model: c.model,
		Usage: Usage{
			InputTokens:  response.Usage.InputTokens,
			OutputTokens: response.Usage.OutputTokens,
		},
	}
	for _, p := range payloads {
		result.Findings = append(result.Findings, types.Finding{
			Severity:    types.ParseSeverity(p.Severity),
			Category:    p.Category,
			Description: p.Description,
			FilePath:    req.FilePath,
			LineStart:   p.LineStart,
			LineEnd:     p.LineEnd,
			Suggestion:  p.Suggestion,
		})
	}
	return result, nil
}

// ReviewProject performs the aggregate project-level review.
func (c *Client) ReviewProject(ctx context.Context, req ProjectRequest) (*Result, error) {
	prompt := buildProjectPrompt(req)

	response, err := c.complete(ctx, "project review", prompt)
	if err != nil {
		return nil, err
	}

	payloads, err := parseResponse[[]findingPayload](responseText(response), "project review")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileTooComplex, err)
	}

	result := &Result{
		Model: c.model,
		Usage: Usage{
			InputTokens:  response.Usage.InputTokens,
			OutputTokens: response.Usage.OutputTokens,
		},
	}
	for _, p := range payloads {
		result.Findings = append(result.Findings, types.Finding{
			Severity:    types.ParseSeverity(p.Severity),
			Category:    p.Category,
			Description: p.Description,
			Suggestion:  p.Suggestion,
		})
	}
	return result, nil
}

// complete runs one message call through the retry machinery.
func (c *Client) complete(ctx context.Context, operation, prompt string) (*anthropic.Message, error) {
	var response *anthropic.Message
	err := c.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}
	return response, nil
}

func responseText(msg *anthropic.Message) string {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

func buildFilePrompt(req FileRequest) string {
	focus := "Report all genuine issues: bugs, security problems, performance traps, error-handling gaps, and significant maintainability concerns."
	switch req.Depth {
	case types.DepthQuick:
		focus = "Report only clear bugs and security problems. Skip style and minor maintainability concerns."
	case types.DepthCritical:
		focus = "Report only critical and high severity issues: exploitable security flaws, data loss, crashes, and correctness bugs."
	case types.DepthDeep:
		focus = "Be thorough. Report bugs, security problems, performance traps, error-handling gaps, concurrency hazards, API design problems, and maintainability concerns, including subtle ones."
	}

	return fmt.Sprintf(`You are a senior engineer auditing the repository %q. Review the following file.

File: %s

%s

%s

Respond with a JSON array of findings. Each finding:
{
  "severity": "critical|high|medium|low",
  "category": "bug|security|performance|error-handling|concurrency|maintainability",
  "description": "What is wrong and why it matters",
  "line_start": 10,
  "line_end": 15,
  "suggestion": "How to fix it"
}

RULES:
1. Only report genuine issues. An empty array [] is the correct answer for clean code.
2. Be specific: name the function or variable involved, not "this code".
3. severity reflects impact, not confidence. When unsure of severity, pick the lower one.

IMPORTANT: Respond with ONLY the raw JSON array. Do NOT wrap it in markdown code fences.`,
		req.RepoName, req.FilePath, focus, string(req.Content))
}

func buildProjectPrompt(req ProjectRequest) string {
	return fmt.Sprintf(`You are a senior engineer finishing an audit of the repository %q. You have reviewed %d files individually; their findings are summarized below.

%s

Now report the CROSS-CUTTING issues that only show up at project level: repeated patterns across files, architectural problems, systemic gaps (missing tests, inconsistent error handling), and risks the per-file findings imply in aggregate. Do not repeat individual per-file findings.

Respond with a JSON array of findings:
{
  "severity": "critical|high|medium|low",
  "category": "architecture|testing|error-handling|security|maintainability",
  "description": "The systemic issue and the evidence for it",
  "suggestion": "How to address it"
}

An empty array [] is acceptable if nothing systemic emerged.

IMPORTANT: Respond with ONLY the raw JSON array. Do NOT wrap it in markdown code fences.`,
		req.RepoName, req.FilesScanned, req.FindingDigest)
}
