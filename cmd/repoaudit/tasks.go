package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/repoaudit/repoaudit/internal/tasks"
	"github.com/repoaudit/repoaudit/internal/types"
)

var (
	tasksStrategy    string
	tasksMaxPriority int
	tasksTop         int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [path]",
	Short: "List open tasks for a repository",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveExisting(cmd, args)
		if err != nil {
			return err
		}

		open, err := tasks.NewStore(db).ListOpen(cmd.Context(), repo.IdentityHash)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			fmt.Println("No open tasks.")
			return nil
		}

		strategy := tasks.Strategy(tasksStrategy)
		if !strategy.Valid() {
			return fmt.Errorf("invalid strategy %q (by_file, by_priority, smart)", tasksStrategy)
		}

		groups := tasks.GroupTasks(open, strategy)
		if tasksMaxPriority > 0 {
			groups = tasks.FilterByPriority(groups, tasksMaxPriority)
		}
		if tasksTop > 0 {
			groups = tasks.TopGroups(groups, tasksTop)
		}

		for _, g := range groups {
			printGroup(g)
		}
		return nil
	},
}

var nextCmd = &cobra.Command{
	Use:   "next [path]",
	Short: "Show the most urgent task group to work on",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveExisting(cmd, args)
		if err != nil {
			return err
		}

		open, err := tasks.NewStore(db).ListOpen(cmd.Context(), repo.IdentityHash)
		if err != nil {
			return err
		}

		next := tasks.GetNextGroup(tasks.GroupTasks(open, tasks.Smart))
		if next == nil {
			fmt.Println("All tasks resolved.")
			return nil
		}
		printGroup(next)
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tasks.NewStore(db).UpdateStatus(cmd.Context(), args[0], types.TaskDone)
	},
}

var startCmd = &cobra.Command{
	Use:   "start <task-id>",
	Short: "Mark a task as in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tasks.NewStore(db).UpdateStatus(cmd.Context(), args[0], types.TaskInProgress)
	},
}

func init() {
	tasksCmd.Flags().StringVar(&tasksStrategy, "strategy", string(tasks.Smart), "grouping strategy: by_file, by_priority, smart")
	tasksCmd.Flags().IntVar(&tasksMaxPriority, "max-priority", 0, "only show groups at this urgency or higher (1=most urgent)")
	tasksCmd.Flags().IntVar(&tasksTop, "top", 0, "only show the first N groups")
	tasksCmd.AddCommand(nextCmd, doneCmd, startCmd)
	rootCmd.AddCommand(tasksCmd)
}

func printGroup(g *tasks.Group) {
	header := color.New(color.Bold).Sprint(g.Key)
	fmt.Printf("\n%s (%d tasks, priority %s)\n", header, g.Size(), priorityLabel(g.Priority))

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Pri", "Status", "Title"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, task := range g.Tasks {
		t.AppendRow(table.Row{task.ID[:8], priorityLabel(task.Priority), string(task.Status), task.Title})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func priorityLabel(p int) string {
	switch p {
	case 1:
		return color.New(color.FgRed, color.Bold).Sprint("P1")
	case 2:
		return color.New(color.FgYellow).Sprint("P2")
	case 3:
		return color.New(color.FgCyan).Sprint("P3")
	default:
		return fmt.Sprintf("P%d", p)
	}
}
