// repoaudit is an incremental repository auditor: it analyzes source
// files with an LLM, caches results per file content hash, and files
// deduplicated, prioritized tasks from the findings.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repoaudit/repoaudit/internal/config"
	"github.com/repoaudit/repoaudit/internal/storage"
)

var (
	cfgPath string
	cfg     config.Config
	db      *storage.DB
)

var rootCmd = &cobra.Command{
	Use:   "repoaudit",
	Short: "Incremental AI repository auditor",
	Long: `repoaudit scans a repository with an LLM, caches per-file results so
unchanged files are never re-analyzed, enforces a hard cost budget, and
turns findings into prioritized, deduplicated tasks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}

		db, err = storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database at %s: %w", cfg.DBPath, err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.repoaudit/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
