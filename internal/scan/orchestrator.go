package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/repoaudit/repoaudit/internal/analyzer"
	"github.com/repoaudit/repoaudit/internal/budget"
	"github.com/repoaudit/repoaudit/internal/cache"
	"github.com/repoaudit/repoaudit/internal/storage"
	"github.com/repoaudit/repoaudit/internal/synth"
	"github.com/repoaudit/repoaudit/internal/types"
)

// maxDigestLines bounds the finding digest handed to the project review.
const maxDigestLines = 200

// Options configures one scan session.
type Options struct {
	Repo      *types.RepoRecord
	Depth     types.Depth
	BudgetUSD float64
	Pricing   budget.Pricing
	// Workers bounds concurrent file pipelines (default: 4).
	Workers int
	// MaxFiles caps how many files this session will consider (0 = all).
	MaxFiles int
}

// Orchestrator drives scan sessions: traversal, cache consultation,
// budget-gated analysis, and incremental task emission.
type Orchestrator struct {
	db       *storage.DB
	cache    *cache.Store
	synth    *synth.Synthesizer
	analyzer analyzer.Analyzer
}

// New creates an orchestrator.
func New(db *storage.DB, cacheStore *cache.Store, synthesizer *synth.Synthesizer, az analyzer.Analyzer) *Orchestrator {
	return &Orchestrator{
		db:       db,
		cache:    cacheStore,
		synth:    synthesizer,
		analyzer: az,
	}
}

// progress is the per-session shared state. One mutex guards all of it;
// every update is short.
type progress struct {
	mu            sync.Mutex
	filesScanned  int
	skippedCached int
	filesFailed   int
	tasksCreated  int
	digest        []string
}

func (p *progress) addDigest(path string, findings []types.Finding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range findings {
		if len(p.digest) >= maxDigestLines {
			return
		}
		p.digest = append(p.digest, fmt.Sprintf("%s [%s/%s]: %s", path, f.Severity, f.Category, f.Description))
	}
}

// Run executes one scan session and returns its summary. The summary is
// returned even on failure paths: partial progress is always reported.
//
// Cancellation is cooperative: once ctx is canceled no new files are
// dispatched, but in-flight analyses complete and persist their results.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*types.SessionSummary, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	depth := opts.Depth
	if depth == "" {
		depth = types.DepthStandard
	}
	if !depth.Valid() {
		return nil, fmt.Errorf("invalid analysis depth: %s", depth)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	pricing := opts.Pricing
	if pricing == (budget.Pricing{}) {
		pricing = budget.DefaultPricing
	}

	guard := budget.NewGuard(opts.BudgetUSD, pricing)

	summary := &types.SessionSummary{
		SessionID:  uuid.New().String(),
		RepoHash:   opts.Repo.IdentityHash,
		FinalState: types.SessionScanning,
		StartedAt:  time.Now().UTC(),
	}

	// Cancellation stops dispatch, not bookkeeping: in-flight calls and
	// session persistence use a detached context so results and the
	// terminal state survive a Ctrl-C. Each analyzer attempt is still
	// bounded by its per-request timeout.
	detached := context.WithoutCancel(ctx)

	// Persist the in-progress session so status reporting sees it.
	if err := o.db.SaveSession(detached, summary); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist session start: %v\n", err)
	}

	files, walkErr := Walk(opts.Repo.Path)
	if walkErr != nil {
		summary.FinalState = types.SessionFailed
		o.finish(detached, summary, guard)
		return summary, fmt.Errorf("traversal failed: %w", walkErr)
	}
	if opts.MaxFiles > 0 && len(files) > opts.MaxFiles {
		files = files[:opts.MaxFiles]
	}

	st := &progress{}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	canceled := false
	for _, f := range files {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		if guard.Halted() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			canceled = true
			break
		}
		wg.Add(1)
		go func(f File) {
			defer wg.Done()
			defer sem.Release(1)
			o.processFile(detached, guard, st, opts.Repo, depth, f)
		}(f)
	}
	wg.Wait()

	st.mu.Lock()
	summary.FilesScanned = st.filesScanned
	summary.FilesSkippedCached = st.skippedCached
	summary.FilesFailed = st.filesFailed
	summary.TasksCreated = st.tasksCreated
	digest := strings.Join(st.digest, "\n")
	st.mu.Unlock()

	switch {
	case canceled:
		// Canceled sessions land in Failed: not complete, resumable via
		// the cache gap query like any other interrupted session.
		summary.FinalState = types.SessionFailed
	case guard.Halted():
		summary.FinalState = types.SessionBudgetHalted
	default:
		summary.FinalState = types.SessionCompleted
	}

	// The review runs only when the session analyzed something new: an
	// unchanged re-scan makes zero analyzer calls, review included.
	if summary.FinalState == types.SessionCompleted && summary.FilesScanned > 0 {
		created := o.runProjectReview(detached, guard, opts.Repo, digest, summary.FilesScanned+summary.FilesSkippedCached)
		summary.TasksCreated += created
	}

	o.finish(detached, summary, guard)
	return summary, nil
}

// processFile runs one file through the cache-lookup -> analysis ->
// cache-write -> task-emission pipeline.
func (o *Orchestrator) processFile(ctx context.Context, guard *budget.Guard, st *progress, repo *types.RepoRecord, depth types.Depth, f File) {
	content, err := readFile(f.AbsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", f.Path, err)
		st.mu.Lock()
		st.filesFailed++
		st.mu.Unlock()
		return
	}
	contentHash := cache.HashContent(content)

	if looksMinified(content) {
		// Generated blob: cache an empty result so resumed sessions
		// don't see it as pending work forever.
		if putErr := o.cache.Put(ctx, &cache.Entry{
			RepoHash:    repo.IdentityHash,
			FilePath:    f.Path,
			ContentHash: contentHash,
			Model:       o.analyzer.Model(),
		}); putErr != nil {
			fmt.Fprintf(os.Stderr, "warning: cache write for %s: %v\n", f.Path, putErr)
		}
		st.mu.Lock()
		st.skippedCached++
		st.mu.Unlock()
		return
	}

	entry, err := o.cache.GetFresh(ctx, repo.IdentityHash, f.Path, contentHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cache lookup for %s: %v\n", f.Path, err)
	}
	if entry != nil {
		// Fresh cache hit: replay findings with no analyzer call. Task
		// emission is idempotent via fingerprints, so replaying findings
		// that already produced tasks creates nothing new.
		created, emitErr := o.synth.EmitFileFindings(ctx, repo.IdentityHash, f.Path, entry.Findings)
		if emitErr != nil {
			fmt.Fprintf(os.Stderr, "warning: task emission for %s: %v\n", f.Path, emitErr)
		}
		st.mu.Lock()
		st.skippedCached++
		st.tasksCreated += created
		st.mu.Unlock()
		st.addDigest(f.Path, entry.Findings)
		return
	}

	reservation, err := guard.Reserve(guard.EstimateCost(len(content), 4096))
	if err != nil {
		// Budget exhausted. The file stays a gap for the next session;
		// the dispatcher stops once it observes the halt.
		return
	}

	result, err := o.analyzer.AnalyzeFile(ctx, analyzer.FileRequest{
		RepoName: repo.Name,
		FilePath: f.Path,
		Content:  content,
		Depth:    depth,
	})
	if err != nil {
		reservation.Release()
		fmt.Fprintf(os.Stderr, "warning: analysis of %s failed: %v\n", f.Path, err)
		st.mu.Lock()
		st.filesFailed++
		st.mu.Unlock()
		return
	}
	reservation.Commit(result.Usage.InputTokens, result.Usage.OutputTokens)

	putErr := o.cache.Put(ctx, &cache.Entry{
		RepoHash:    repo.IdentityHash,
		FilePath:    f.Path,
		ContentHash: contentHash,
		Findings:    result.Findings,
		Model:       result.Model,
		TokensUsed:  result.Usage.Total(),
	})
	if putErr != nil {
		fmt.Fprintf(os.Stderr, "warning: cache write for %s: %v\n", f.Path, putErr)
	}

	created, emitErr := o.synth.EmitFileFindings(ctx, repo.IdentityHash, f.Path, result.Findings)
	if emitErr != nil {
		fmt.Fprintf(os.Stderr, "warning: task emission for %s: %v\n", f.Path, emitErr)
	}

	st.mu.Lock()
	st.filesScanned++
	st.tasksCreated += created
	st.mu.Unlock()
	st.addDigest(f.Path, result.Findings)
}

// runProjectReview performs the single aggregate pass at the end of a
// completed session. A budget denial or review failure leaves the session
// Completed: the per-file work already stands.
func (o *Orchestrator) runProjectReview(ctx context.Context, guard *budget.Guard, repo *types.RepoRecord, digest string, filesCovered int) int {
	if filesCovered == 0 {
		return 0
	}

	reservation, err := guard.Reserve(guard.EstimateCost(len(digest), 4096))
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExhausted) {
			fmt.Fprintf(os.Stderr, "warning: skipping project review: %v\n", err)
		}
		return 0
	}

	result, err := o.analyzer.ReviewProject(ctx, analyzer.ProjectRequest{
		RepoName:      repo.Name,
		FindingDigest: digest,
		FilesScanned:  filesCovered,
	})
	if err != nil {
		reservation.Release()
		fmt.Fprintf(os.Stderr, "warning: project review failed: %v\n", err)
		return 0
	}
	reservation.Commit(result.Usage.InputTokens, result.Usage.OutputTokens)

	created, err := o.synth.EmitProjectFindings(ctx, repo.IdentityHash, result.Findings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: project review task emission: %v\n", err)
	}
	return created
}

// finish persists the terminal session summary and repo bookkeeping.
func (o *Orchestrator) finish(ctx context.Context, summary *types.SessionSummary, guard *budget.Guard) {
	snap := guard.Snapshot()
	summary.TokensUsed = snap.TokensUsed
	summary.CostEstimate = snap.SpentUSD
	summary.Halted = summary.FinalState == types.SessionBudgetHalted
	summary.CompletedAt = time.Now().UTC()

	if err := o.db.SaveSession(ctx, summary); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist session summary: %v\n", err)
	}
	if summary.FinalState == types.SessionCompleted {
		if err := o.db.TouchRepoScanned(ctx, summary.RepoHash, summary.CompletedAt); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to update repo scan time: %v\n", err)
		}
	}
}
