package main

import (
	"fmt"

	"github.com/theRebelliousNerd/evoloop/internal/auditor"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	auditHistoryLimit = 50
	auditGrowthLimit  = 10
)

// auditCmd runs a one-shot cognitive audit
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit recent evolution behavior for cognitive failure patterns",
	Long: `Reads the evolution ledger and runs every detector once:

  - file-modification loops (same file reworked over and over)
  - repeated identical errors
  - action pattern loops
  - roadmap drift (recent work unrelated to the configured focus)
  - growth stagnation (flat growth across recent cycles)

The audit is read-only; it never mutates the ledger or the workspace.
Use it to inspect a loop that the daemon has been running unattended.`,
	RunE: showAudit,
}

func showAudit(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	store, err := ledger.NewStore(cfg.StateDir())
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	history, err := store.Recent(auditHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	scores, err := store.RecentGrowthScores(auditGrowthLimit)
	if err != nil {
		return fmt.Errorf("failed to read growth scores: %w", err)
	}

	logger.Info("running cognitive audit",
		zap.Int("history", len(history)),
		zap.Int("growth_samples", len(scores)),
		zap.String("focus", cfg.Evolution.Focus))

	report := auditor.New(auditor.DefaultConfig()).
		RunFullAudit(history, scores, cfg.Evolution.Focus)

	fmt.Println("Cognitive Audit")
	fmt.Println("===============")
	fmt.Printf("Health:    %s\n", report.OverallHealth)
	fmt.Printf("Alignment: %.2f\n", report.AlignmentScore)
	fmt.Printf("History:   %d entries, %d growth samples\n", len(history), len(scores))
	fmt.Println()

	if !report.HasFindings() {
		fmt.Println("✓ No findings. The loop looks healthy.")
		return nil
	}

	if len(report.Issues) > 0 {
		fmt.Println("Issues:")
		for _, issue := range report.Issues {
			fmt.Printf("  ✗ %s\n", issue)
		}
		fmt.Println()
	}
	if len(report.Warnings) > 0 {
		fmt.Println("Warnings:")
		for _, warning := range report.Warnings {
			fmt.Printf("  ⚠ %s\n", warning)
		}
		fmt.Println()
	}
	if len(report.Recommendations) > 0 {
		fmt.Println("Recommendations:")
		for _, rec := range report.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
	return nil
}
