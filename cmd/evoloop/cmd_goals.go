// Package main implements the evoloop CLI.
//
// This file provides goal lifecycle commands. They operate on the goal
// store directly and never touch the LLM backends, so they work even
// without API keys configured.
package main

import (
	"fmt"
	"strings"

	"github.com/theRebelliousNerd/evoloop/internal/goals"

	"github.com/spf13/cobra"
)

var goalPriority int

// goalsCmd is the parent command for goal operations
var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Inspect and manage the evolution goal backlog",
	Long: `The daemon works one goal at a time, promoting the highest-priority
pending goal to active and evaluating completion after every cycle.
These commands let an operator inspect and steer that backlog.

Examples:
  evoloop goals list
  evoloop goals add "Reduce snapshot size for large repos" --priority 7
  evoloop goals done 1a2b3c4d
  evoloop goals defer 1a2b3c4d`,
}

var goalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals grouped by status",
	RunE:  listGoals,
}

var goalsAddCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Add a pending goal",
	Args:  cobra.MinimumNArgs(1),
	RunE:  addGoal,
}

var goalsDoneCmd = &cobra.Command{
	Use:   "done [id]",
	Short: "Mark a goal completed",
	Args:  cobra.ExactArgs(1),
	RunE:  statusSetter(goals.StatusCompleted),
}

var goalsDeferCmd = &cobra.Command{
	Use:   "defer [id]",
	Short: "Defer a goal so the daemon skips it",
	Args:  cobra.ExactArgs(1),
	RunE:  statusSetter(goals.StatusDeferred),
}

var goalsDropCmd = &cobra.Command{
	Use:   "drop [id]",
	Short: "Remove a goal from the store",
	Args:  cobra.ExactArgs(1),
	RunE:  dropGoal,
}

func init() {
	goalsAddCmd.Flags().IntVar(&goalPriority, "priority", 5, "Goal priority, 1 (lowest) to 10")

	goalsCmd.AddCommand(
		goalsListCmd,
		goalsAddCmd,
		goalsDoneCmd,
		goalsDeferCmd,
		goalsDropCmd,
	)
}

func openGoalStore() (*goals.Store, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	return goals.NewStore(cfg.GoalStatePath()), nil
}

func listGoals(cmd *cobra.Command, args []string) error {
	store, err := openGoalStore()
	if err != nil {
		return err
	}

	summary := store.Summarize()
	fmt.Printf("Goals: %d total, %d actionable\n", summary.Total, summary.Actionable)
	for status, count := range summary.ByStatus {
		fmt.Printf("  %-10s %d\n", status, count)
	}

	active := store.ActiveGoals(0)
	if len(active) == 0 {
		fmt.Println("\nNo actionable goals. The daemon will generate one on its next cycle.")
		return nil
	}

	fmt.Println("\nActionable (highest priority first):")
	for _, g := range active {
		marker := " "
		if g.Status == goals.StatusActive {
			marker = "▶"
		}
		fmt.Printf("  %s [%s] P%d %s\n", marker, g.ID, g.Priority, g.Content)
		if src := g.Metadata["source"]; src != "" {
			fmt.Printf("      source: %s\n", src)
		}
	}
	return nil
}

func addGoal(cmd *cobra.Command, args []string) error {
	store, err := openGoalStore()
	if err != nil {
		return err
	}

	content := strings.Join(args, " ")
	id, err := store.Add(content, goalPriority, map[string]string{"source": "operator"})
	if err != nil {
		return fmt.Errorf("failed to add goal: %w", err)
	}

	fmt.Printf("Added goal [%s] P%d: %s\n", id, goalPriority, content)
	return nil
}

// statusSetter builds a handler that moves a goal to the given status.
func statusSetter(status goals.GoalStatus) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store, err := openGoalStore()
		if err != nil {
			return err
		}

		id := args[0]
		if err := store.UpdateStatus(id, status); err != nil {
			return fmt.Errorf("failed to update goal %s: %w", id, err)
		}
		fmt.Printf("Goal [%s] → %s\n", id, status)
		return nil
	}
}

func dropGoal(cmd *cobra.Command, args []string) error {
	store, err := openGoalStore()
	if err != nil {
		return err
	}

	id := args[0]
	if err := store.Remove(id); err != nil {
		return fmt.Errorf("failed to remove goal %s: %w", id, err)
	}
	fmt.Printf("Goal [%s] removed\n", id)
	return nil
}
