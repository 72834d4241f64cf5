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

// runCmd starts the evolution daemon
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the evolution daemon until interrupted",
	Long: `Starts the supervisory loop and keeps it running.

Every interval the daemon:
  1. Ensures an active goal exists (generating one when needed)
  2. Runs one evolution cycle under that goal
  3. Evaluates goal completion against the cycle outcome
  4. On the audit cadence, runs the cognitive auditor and applies
     whatever correction plans it produces

The daemon stops on SIGINT/SIGTERM, or halts on its own when the
correction policy escalates. An escalation halt is an error: the loop
refuses to continue until an operator has looked at the workspace.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	// Keep the protected-path list live while the loop rewrites files.
	if err := sup.protector.Watch(ctx); err != nil {
		logger.Warn("protect file watch unavailable", zap.Error(err))
	}

	logger.Info("evolution daemon starting",
		zap.String("root", cfg.Workspace.Root),
		zap.Duration("interval", cfg.GetCycleInterval()),
		zap.String("focus", cfg.Evolution.Focus),
		zap.Int("audit_every", cfg.Audit.EveryCycles))

	if err := sup.ctrl.Run(ctx); err != nil {
		return fmt.Errorf("daemon halted: %w", err)
	}

	logger.Info("evolution daemon stopped")
	return nil
}
