package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/auditor"
	"github.com/theRebelliousNerd/evoloop/internal/config"
	"github.com/theRebelliousNerd/evoloop/internal/goals"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// clearGeneratorKeys keeps handler tests from picking up real API keys
// and running live cycles.
func clearGeneratorKeys(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("EVOLOOP_ROOT", "")
	t.Setenv("EVOLOOP_FOCUS", "")
}

func TestInitWorkspaceScaffolds(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	clearGeneratorKeys(t)

	output := captureOutput(t, func() {
		if err := initWorkspace(&cobra.Command{}, nil); err != nil {
			t.Fatalf("initWorkspace returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Next steps") {
		t.Fatalf("expected next steps, got: %s", output)
	}
	if _, err := os.Stat(filepath.Join(workspace, ".evoloop", "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, ".evoprotect")); err != nil {
		t.Fatalf("expected .evoprotect: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, ".evoloop", "state")); err != nil {
		t.Fatalf("expected state dir: %v", err)
	}

	store := goals.NewStore(filepath.Join(workspace, ".evoloop", "state", "goals.json"))
	if store.Count() == 0 {
		t.Fatalf("expected seeded goals")
	}
}

func TestInitWorkspaceAlreadyInitialized(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	clearGeneratorKeys(t)

	captureOutput(t, func() {
		if err := initWorkspace(&cobra.Command{}, nil); err != nil {
			t.Fatalf("first init returned error: %v", err)
		}
	})
	output := captureOutput(t, func() {
		if err := initWorkspace(&cobra.Command{}, nil); err != nil {
			t.Fatalf("second init returned error: %v", err)
		}
	})

	if !strings.Contains(output, "already initialized") {
		t.Fatalf("expected already-initialized notice, got: %s", output)
	}
}

func TestShowStatusEmptyWorkspace(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	clearGeneratorKeys(t)

	output := captureOutput(t, func() {
		if err := showStatus(&cobra.Command{}, nil); err != nil {
			t.Fatalf("showStatus returned error: %v", err)
		}
	})

	if !strings.Contains(output, "evoloop Status") {
		t.Fatalf("expected status header, got: %s", output)
	}
	if !strings.Contains(output, "Cycles run:     0") {
		t.Fatalf("expected zero cycles, got: %s", output)
	}
	if !strings.Contains(output, "✗ Gemini API key not configured") {
		t.Fatalf("expected missing key notice, got: %s", output)
	}
}

func TestGoalsAddAndList(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	clearGeneratorKeys(t)
	goalPriority = 7

	addOut := captureOutput(t, func() {
		if err := addGoal(&cobra.Command{}, []string{"Speed", "up", "the", "snapshot"}); err != nil {
			t.Fatalf("addGoal returned error: %v", err)
		}
	})
	if !strings.Contains(addOut, "Speed up the snapshot") {
		t.Fatalf("expected joined goal content, got: %s", addOut)
	}

	listOut := captureOutput(t, func() {
		if err := listGoals(&cobra.Command{}, nil); err != nil {
			t.Fatalf("listGoals returned error: %v", err)
		}
	})
	if !strings.Contains(listOut, "P7 Speed up the snapshot") {
		t.Fatalf("expected listed goal, got: %s", listOut)
	}
	if !strings.Contains(listOut, "source: operator") {
		t.Fatalf("expected operator source, got: %s", listOut)
	}
}

func TestGoalsStatusTransitions(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	clearGeneratorKeys(t)

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	store := goals.NewStore(cfg.GoalStatePath())
	id, err := store.Add("Refactor the applier", 5, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	captureOutput(t, func() {
		if err := statusSetter(goals.StatusCompleted)(&cobra.Command{}, []string{id}); err != nil {
			t.Fatalf("done transition: %v", err)
		}
	})

	reloaded := goals.NewStore(cfg.GoalStatePath())
	g, ok := reloaded.Get(id)
	if !ok {
		t.Fatalf("goal %s vanished", id)
	}
	if g.Status != goals.StatusCompleted {
		t.Fatalf("expected completed, got %s", g.Status)
	}

	output := captureOutput(t, func() {
		if err := dropGoal(&cobra.Command{}, []string{id}); err != nil {
			t.Fatalf("dropGoal: %v", err)
		}
	})
	if !strings.Contains(output, "removed") {
		t.Fatalf("expected removal notice, got: %s", output)
	}
}

func TestShowAuditEmptyLedger(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	clearGeneratorKeys(t)

	output := captureOutput(t, func() {
		if err := showAudit(&cobra.Command{}, nil); err != nil {
			t.Fatalf("showAudit returned error: %v", err)
		}
	})

	if !strings.Contains(output, "No findings") {
		t.Fatalf("expected clean audit, got: %s", output)
	}
}

func TestRunSingleCycleWithoutKeysFails(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	clearGeneratorKeys(t)

	err := runSingleCycle(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected generator construction to fail without keys")
	}
	if !strings.Contains(err.Error(), "generator") {
		t.Fatalf("expected generator error, got: %v", err)
	}
}

func TestResolveConfigUsesWorkspaceFlag(t *testing.T) {
	workspace = t.TempDir()
	clearGeneratorKeys(t)

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.Workspace.Root != workspace {
		t.Fatalf("expected root %q, got %q", workspace, cfg.Workspace.Root)
	}
}

func TestBuildReportMarkdownSections(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workspace.Root = "/tmp/repo"
	cfg.Evolution.Focus = "step_7_meta_cognition"

	entries := []ledger.Entry{
		{
			Timestamp:   time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
			File:        "parser.go",
			Description: "Fix | pipes\nand newlines",
			Status:      ledger.StatusSuccess,
		},
	}
	summary := goals.Summary{
		Total:      2,
		Actionable: 1,
		TopPriorities: []goals.Goal{
			{ID: "abcd1234", Content: "Finish the lexer", Priority: 8, Status: goals.StatusActive},
		},
	}
	report := &auditor.Report{
		OverallHealth:  auditor.HealthHealthy,
		AlignmentScore: 0.80,
	}

	md := buildReportMarkdown(cfg, entries, []int{10, 20}, 3, 20, summary, report)

	for _, want := range []string{
		"# Evolution Report",
		"## Recent Cycles",
		"Growth trend: `10 → 20`",
		"Fix \\| pipes and newlines",
		"**P8** [abcd1234] Finish the lexer",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
}

func TestMdCellFlattening(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := mdCell(long)
	if len(got) != 63 || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected 60-char truncation with ellipsis, got %q", got)
	}
	if mdCell("a|b\nc") != "a\\|b c" {
		t.Fatalf("expected pipe escaping and newline flattening, got %q", mdCell("a|b\nc"))
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
