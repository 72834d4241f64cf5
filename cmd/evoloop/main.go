package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "evoloop",
	Short: "evoloop - supervisory loop for a self-evolving codebase",
	Long: `evoloop runs a repository through continuous, guarded self-modification.

Each cycle it snapshots the workspace, asks an LLM planner/coder pair for
one concrete improvement, validates the proposal against protection and
syntax guards, applies it, runs the test suite, and commits what survives.
A cognitive auditor watches the evolution ledger for loops, roadmap drift,
and stagnation; a correction policy turns its findings into strategy
adjustments, context resets, or an operator escalation.

Run without arguments to open the live dashboard.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The dashboard owns the terminal; keep zap off it.
		if cmd.Name() == "evoloop" || cmd.Name() == "watch" {
			return nil
		}

		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: open the live dashboard
		return runWatch(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "One-shot operation timeout")

	// Add commands to root
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(goalsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the workspace root, preferring the -w flag
// over the current directory.
func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// resolveConfig loads <root>/.evoloop/config.yaml, falling back to
// defaults when the workspace has not been initialized yet. The
// resolved root always wins over the config file's placeholder ".".
func resolveConfig() (*config.Config, error) {
	root := resolveWorkspace()
	cfg, err := config.Load(filepath.Join(root, ".evoloop", "config.yaml"))
	if err != nil {
		return nil, err
	}
	if cfg.Workspace.Root == "" || cfg.Workspace.Root == "." {
		cfg.Workspace.Root = root
	}
	return cfg, nil
}
