package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/auditor"
	"github.com/theRebelliousNerd/evoloop/internal/config"
	"github.com/theRebelliousNerd/evoloop/internal/goals"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	reportCycles int
	reportRaw    bool
)

// reportCmd renders an evolution report for the terminal
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a markdown report of recent evolution activity",
	Long: `Summarizes the recent ledger, growth trend, goal backlog, and the
current audit verdict as a markdown document rendered for the terminal.

Use --raw to emit plain markdown for piping into files or chat.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportCycles, "cycles", 20, "How many recent ledger entries the report covers")
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "Emit raw markdown without terminal rendering")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	store, err := ledger.NewStore(cfg.StateDir())
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	entries, err := store.Recent(reportCycles)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	scores, err := store.RecentGrowthScores(auditGrowthLimit)
	if err != nil {
		return fmt.Errorf("failed to read growth scores: %w", err)
	}
	cycles, _ := store.CyclesRun()
	growth, _ := store.GrowthScore()

	summary := goals.NewStore(cfg.GoalStatePath()).Summarize()
	report := auditor.New(auditor.DefaultConfig()).
		RunFullAudit(entries, scores, cfg.Evolution.Focus)

	md := buildReportMarkdown(cfg, entries, scores, cycles, growth, summary, report)

	if reportRaw {
		fmt.Println(md)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Println(md)
		return nil
	}
	out, err := renderer.Render(md)
	if err != nil {
		fmt.Println(md)
		return nil
	}
	fmt.Print(out)
	return nil
}

// buildReportMarkdown assembles the report document.
func buildReportMarkdown(cfg *config.Config, entries []ledger.Entry, scores []int,
	cycles, growth int, summary goals.Summary, report *auditor.Report) string {

	var sb strings.Builder

	sb.WriteString("# Evolution Report\n\n")
	sb.WriteString(fmt.Sprintf("**Workspace**: %s  \n", cfg.Workspace.Root))
	sb.WriteString(fmt.Sprintf("**Focus**: %s  \n", orNone(cfg.Evolution.Focus)))
	sb.WriteString(fmt.Sprintf("**Generated**: %s\n\n", time.Now().Format(time.RFC3339)))

	sb.WriteString("## Loop\n\n")
	sb.WriteString(fmt.Sprintf("- Cycles run: %d\n", cycles))
	sb.WriteString(fmt.Sprintf("- Growth score: %d\n", growth))
	sb.WriteString(fmt.Sprintf("- Health: %s (alignment %.2f)\n\n", report.OverallHealth, report.AlignmentScore))

	if len(scores) > 0 {
		parts := make([]string, len(scores))
		for i, s := range scores {
			parts[i] = fmt.Sprintf("%d", s)
		}
		sb.WriteString(fmt.Sprintf("Growth trend: `%s`\n\n", strings.Join(parts, " → ")))
	}

	sb.WriteString("## Recent Cycles\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No cycles recorded yet._\n\n")
	} else {
		sb.WriteString("| When | Status | File | Description |\n")
		sb.WriteString("|------|--------|------|-------------|\n")
		// Newest first reads better in a report.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			icon := "✅"
			if e.Status != ledger.StatusSuccess {
				icon = "❌"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				e.Timestamp.Format("01-02 15:04"), icon, e.File, mdCell(e.Description)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Goals\n\n")
	sb.WriteString(fmt.Sprintf("%d total, %d actionable.\n\n", summary.Total, summary.Actionable))
	for _, g := range summary.TopPriorities {
		sb.WriteString(fmt.Sprintf("- **P%d** [%s] %s (%s)\n", g.Priority, g.ID, g.Content, g.Status))
	}
	sb.WriteString("\n")

	if report.HasFindings() {
		sb.WriteString("## Audit Findings\n\n")
		for _, issue := range report.Issues {
			sb.WriteString(fmt.Sprintf("- 🛑 %s\n", issue))
		}
		for _, warning := range report.Warnings {
			sb.WriteString(fmt.Sprintf("- ⚠️ %s\n", warning))
		}
		if len(report.Recommendations) > 0 {
			sb.WriteString("\n**Recommendations**:\n\n")
			for _, rec := range report.Recommendations {
				sb.WriteString(fmt.Sprintf("- %s\n", rec))
			}
		}
	}

	return sb.String()
}

// mdCell flattens a string for use inside a markdown table cell.
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}
