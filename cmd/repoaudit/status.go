package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/repoaudit/repoaudit/internal/tasks"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the last scan session and open task count",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveExisting(cmd, args)
		if err != nil {
			return err
		}

		fmt.Printf("Repository: %s\n", repo.Name)
		fmt.Printf("Identity:   %s\n", repo.IdentityHash[:16])
		if !repo.LastScannedAt.IsZero() {
			fmt.Printf("Last scan:  %s\n", humanize.Time(repo.LastScannedAt))
		} else {
			fmt.Printf("Last scan:  never completed\n")
		}

		session, err := db.LastSession(cmd.Context(), repo.IdentityHash)
		if err != nil {
			return err
		}
		if session != nil {
			fmt.Printf("\nLast session (%s):\n", stateColor(session.FinalState).Sprint(string(session.FinalState)))
			fmt.Printf("  Started:       %s\n", humanize.Time(session.StartedAt))
			fmt.Printf("  Analyzed:      %s files\n", humanize.Comma(int64(session.FilesScanned)))
			fmt.Printf("  Cache hits:    %s files\n", humanize.Comma(int64(session.FilesSkippedCached)))
			if session.FilesFailed > 0 {
				fmt.Printf("  Failed:        %s files\n", humanize.Comma(int64(session.FilesFailed)))
			}
			fmt.Printf("  Tasks created: %s\n", humanize.Comma(int64(session.TasksCreated)))
			fmt.Printf("  Spent:         $%.4f (%s tokens)\n", session.CostEstimate, humanize.Comma(session.TokensUsed))
		}

		openCount, err := tasks.NewStore(db).CountOpen(cmd.Context(), repo.IdentityHash)
		if err != nil {
			return err
		}
		fmt.Printf("\nOpen tasks: %d\n", openCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
