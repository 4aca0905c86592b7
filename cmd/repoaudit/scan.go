package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/repoaudit/repoaudit/internal/analyzer"
	"github.com/repoaudit/repoaudit/internal/budget"
	"github.com/repoaudit/repoaudit/internal/cache"
	"github.com/repoaudit/repoaudit/internal/identity"
	"github.com/repoaudit/repoaudit/internal/scan"
	"github.com/repoaudit/repoaudit/internal/synth"
	"github.com/repoaudit/repoaudit/internal/tasks"
	"github.com/repoaudit/repoaudit/internal/types"
)

var (
	scanBudget   float64
	scanDepth    string
	scanWorkers  int
	scanMaxFiles int
	scanRepoName string
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a repository and file tasks from findings",
	Long: `Walk the repository, analyze files that changed since the last scan,
and file prioritized tasks. Unchanged files resolve from the cache at no
cost; the scan halts cleanly when the budget cap is reached and resumes
from the remaining gap on the next run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}

		depth := cfg.Depth
		if scanDepth != "" {
			depth = types.Depth(scanDepth)
		}
		budgetUSD := cfg.BudgetUSD
		if scanBudget > 0 {
			budgetUSD = scanBudget
		}
		workers := cfg.Workers
		if scanWorkers > 0 {
			workers = scanWorkers
		}
		maxFiles := cfg.FileBudget()
		if scanMaxFiles > 0 {
			maxFiles = scanMaxFiles
		}

		// Ctrl-C stops dispatching new files; in-flight analyses finish
		// and persist before the summary prints.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repo, err := identity.New().Resolve(ctx, db, scanRepoName, root)
		if err != nil {
			return fmt.Errorf("failed to resolve repository: %w", err)
		}

		client, err := analyzer.NewClient(analyzer.Config{
			Model:          cfg.Model,
			RequestsPerSec: cfg.RequestsPerSec,
			MaxConcurrent:  workers,
		})
		if err != nil {
			return err
		}

		orch := scan.New(db, cache.NewStore(db), synth.New(tasks.NewStore(db)), client)

		fmt.Printf("Scanning %s (depth=%s, budget=$%.2f, workers=%d)\n", repo.Path, depth, budgetUSD, workers)

		summary, err := orch.Run(ctx, scan.Options{
			Repo:      repo,
			Depth:     depth,
			BudgetUSD: budgetUSD,
			Pricing:   budget.Pricing{InputPerMTok: cfg.InputPerMTok, OutputPerMTok: cfg.OutputPerMTok},
			Workers:   workers,
			MaxFiles:  maxFiles,
		})
		if summary != nil {
			printSummary(summary)
		}
		return err
	},
}

func init() {
	scanCmd.Flags().Float64Var(&scanBudget, "budget", 0, "session budget cap in USD (overrides config)")
	scanCmd.Flags().StringVar(&scanDepth, "depth", "", "analysis depth: quick, critical, standard, deep")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "concurrent file analyses")
	scanCmd.Flags().IntVar(&scanMaxFiles, "max-files", 0, "cap on files considered this session")
	scanCmd.Flags().StringVar(&scanRepoName, "name", "", "repository display name (default: directory name)")
	rootCmd.AddCommand(scanCmd)
}

func printSummary(s *types.SessionSummary) {
	fmt.Println()
	fmt.Printf("Session %s: %s\n", s.SessionID[:8], stateColor(s.FinalState).Sprint(string(s.FinalState)))
	fmt.Printf("  Analyzed:      %s files\n", humanize.Comma(int64(s.FilesScanned)))
	fmt.Printf("  Cache hits:    %s files\n", humanize.Comma(int64(s.FilesSkippedCached)))
	if s.FilesFailed > 0 {
		fmt.Printf("  Failed:        %s files\n", humanize.Comma(int64(s.FilesFailed)))
	}
	fmt.Printf("  Tasks created: %s\n", humanize.Comma(int64(s.TasksCreated)))
	fmt.Printf("  Tokens used:   %s ($%.4f)\n", humanize.Comma(s.TokensUsed), s.CostEstimate)
	if s.Halted {
		fmt.Printf("\n%s budget cap reached; re-run with a higher --budget to finish the remaining files\n",
			color.New(color.FgYellow).Sprint("note:"))
	}
}

func stateColor(state types.SessionState) *color.Color {
	switch state {
	case types.SessionCompleted:
		return color.New(color.FgGreen, color.Bold)
	case types.SessionBudgetHalted:
		return color.New(color.FgYellow, color.Bold)
	case types.SessionFailed:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgCyan)
	}
}

// resolveExisting looks up an already-registered repo for read-only
// commands, preferring an explicit path argument over the working
// directory.
func resolveExisting(cmd *cobra.Command, args []string) (*types.RepoRecord, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	repo, err := identity.New().Resolve(cmd.Context(), db, "", root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository: %w", err)
	}
	return repo, nil
}
