package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/repoaudit/repoaudit/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [path]",
	Short: "Show cache effectiveness for a repository",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveExisting(cmd, args)
		if err != nil {
			return err
		}

		stats, err := cache.NewStore(db).Stats(cmd.Context(), repo.IdentityHash)
		if err != nil {
			return err
		}

		fmt.Printf("Cache for %s:\n", repo.Name)
		fmt.Printf("  Entries:      %s\n", humanize.Comma(int64(stats.Entries)))
		fmt.Printf("  Hits:         %s\n", humanize.Comma(stats.Hits))
		fmt.Printf("  Misses:       %s\n", humanize.Comma(stats.Misses))
		fmt.Printf("  Hit rate:     %.1f%%\n", stats.HitRate())
		fmt.Printf("  Tokens saved: %s\n", humanize.Comma(stats.TokensSaved))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [path]",
	Short: "Drop all cached results for a repository",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveExisting(cmd, args)
		if err != nil {
			return err
		}
		if err := cache.NewStore(db).Clear(cmd.Context(), repo.IdentityHash); err != nil {
			return err
		}
		fmt.Printf("Cache cleared for %s. The next scan re-analyzes everything.\n", repo.Name)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune [path]",
	Short: "Drop cache entries for files that no longer exist",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveExisting(cmd, args)
		if err != nil {
			return err
		}
		removed, err := cache.NewStore(db).Prune(cmd.Context(), repo.IdentityHash, repo.Path)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d stale entries.\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
