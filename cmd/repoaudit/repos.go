package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/repoaudit/repoaudit/internal/identity"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage registered repositories",
}

var reposAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a repository and pin its identity hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		repo, err := identity.New().Resolve(cmd.Context(), db, name, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s (identity %s)\n", repo.Name, repo.IdentityHash[:16])
		return nil
	},
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := db.ListRepos(cmd.Context())
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("No repositories registered.")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Path", "Identity", "Last scan"})
		for _, r := range repos {
			lastScan := "never"
			if !r.LastScannedAt.IsZero() {
				lastScan = humanize.Time(r.LastScannedAt)
			}
			t.AppendRow(table.Row{r.Name, r.Path, r.IdentityHash[:16], lastScan})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	reposAddCmd.Flags().String("name", "", "display name (default: directory name)")
	reposCmd.AddCommand(reposAddCmd, reposListCmd)
	rootCmd.AddCommand(reposCmd)
}
