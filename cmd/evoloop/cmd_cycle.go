package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/theRebelliousNerd/evoloop/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cycleDirective string

// cycleCmd runs a single evolution cycle
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single evolution cycle and exit",
	Long: `Runs exactly one cycle: snapshot, propose, validate, apply, test,
commit. Useful for dry runs and for driving the loop from cron.

With --directive the operator's instruction replaces the active goal
for this one cycle:

  evoloop cycle --directive "Harden the retry logic in the fetcher"`,
	RunE: runSingleCycle,
}

func init() {
	cycleCmd.Flags().StringVarP(&cycleDirective, "directive", "d", "", "Operator instruction overriding the active goal")
}

func runSingleCycle(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Workspace.Root); err != nil {
		logger.Warn("category logging unavailable", zap.Error(err))
	}
	defer logging.CloseAll()

	sup, err := buildSupervisor(cfg)
	if err != nil {
		return err
	}
	defer sup.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nCycle cancelled")
		cancel()
	}()

	logger.Info("running single cycle",
		zap.String("root", cfg.Workspace.Root),
		zap.String("directive", cycleDirective))

	res, err := sup.ctrl.RunOnce(ctx, cycleDirective)
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}

	fmt.Printf("Action:  %s\n", res.Action)
	if res.Intent != "" {
		fmt.Printf("Intent:  %s\n", res.Intent)
	}
	if len(res.FilesModified) > 0 {
		fmt.Println("Files:")
		for _, f := range res.FilesModified {
			fmt.Printf("  - %s\n", f)
		}
	}
	if res.CommitHash != "" {
		fmt.Printf("Commit:  %s\n", res.CommitHash)
	}
	if res.SyncStatus != "" {
		fmt.Printf("Sync:    %s\n", res.SyncStatus)
	}
	if res.Error != "" {
		fmt.Printf("Error:   %s\n", res.Error)
	}
	if res.Success {
		fmt.Println("✓ Cycle completed")
	} else {
		fmt.Println("✗ Cycle did not complete cleanly")
	}
	return nil
}
