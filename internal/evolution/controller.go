package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/auditor"
	"github.com/theRebelliousNerd/evoloop/internal/config"
	"github.com/theRebelliousNerd/evoloop/internal/correction"
	"github.com/theRebelliousNerd/evoloop/internal/goals"
	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

const (
	// auditHistoryWindow is how many ledger entries a full audit reads;
	// auditGrowthWindow how many growth samples.
	auditHistoryWindow = 50
	auditGrowthWindow  = 10

	// mismatchFindingThreshold is how many consecutive unverified
	// pushes raise a correction finding.
	mismatchFindingThreshold = 2
)

// ControllerDeps wires the controller's collaborators.
type ControllerDeps struct {
	Config    *config.Config
	Orch      *Orchestrator
	Generator IdeaGenerator
	Goals     *goals.Manager
	Auditor   *auditor.Auditor
	Policy    *correction.Manager
	Records   RecordStore
}

// Controller is the supervisory daemon: it schedules cycles, keeps the
// goal lifecycle moving, runs cognitive audits on a cadence, applies
// correction plans, and halts when correction pressure escalates.
type Controller struct {
	cfg     *config.Config
	orch    *Orchestrator
	gen     IdeaGenerator
	goals   *goals.Manager
	audit   *auditor.Auditor
	policy  *correction.Manager
	records RecordStore

	directive      string
	extraSleep     time.Duration
	consecFailures int
	lastConfidence float64
}

// NewController creates the supervisory daemon.
func NewController(d ControllerDeps) *Controller {
	return &Controller{
		cfg:     d.Config,
		orch:    d.Orch,
		gen:     d.Generator,
		goals:   d.Goals,
		audit:   d.Auditor,
		policy:  d.Policy,
		records: d.Records,
	}
}

// Run drives the daemon loop until the context is canceled or the
// escalation heuristic halts it. A clean shutdown returns nil; an
// escalation halt returns the reason.
func (c *Controller) Run(ctx context.Context) error {
	logging.Boot("daemon starting: interval=%s, audit every %d cycles",
		c.cfg.GetCycleInterval(), c.cfg.Audit.EveryCycles)

	for {
		if ctx.Err() != nil {
			logging.Boot("daemon stopping: context canceled")
			return nil
		}

		if _, err := c.Step(ctx); err != nil {
			return err
		}

		pause := c.cfg.GetCycleInterval() + c.extraSleep
		if c.extraSleep > 0 {
			logging.Evolution("deep sleep extends the pause by %s", c.extraSleep)
			c.extraSleep = 0
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			logging.Boot("daemon stopping: context canceled")
			return nil
		case <-timer.C:
		}
	}
}

// Step runs one supervised iteration: ensure a goal, run a cycle,
// evaluate the goal, react to push mismatches, audit on cadence, and
// check for escalation. The returned error is non-nil only when the
// loop must halt.
func (c *Controller) Step(ctx context.Context) (CycleResult, error) {
	goal, err := c.goals.EnsureActiveGoal(ctx, c.cfg.Evolution.Focus)
	if err != nil {
		logging.GoalsWarn("continuing without an active goal: %v", err)
	}

	intent := c.directive
	c.directive = ""
	if intent == "" && goal.ID != "" {
		intent = "Current goal: " + goal.Content
	}

	result := c.orch.RunCycle(ctx, intent)
	if result.Success {
		c.consecFailures = 0
	} else {
		c.consecFailures++
	}

	if goal.ID != "" {
		recent, _ := c.records.Recent(historyHintCount)
		eval := c.goals.EvaluateCompletion(ctx, goal, result.Success, recent)
		c.lastConfidence = eval.Confidence
	}

	// Unverified pushes feed the normal correction path rather than a
	// special-case bail-out: the default warning policy applies.
	if n := c.orch.ConsecutiveMismatches(); n >= mismatchFindingThreshold {
		finding := correction.Finding{
			Severity:  auditor.SeverityWarning,
			ErrorType: auditor.ErrorPushMismatch,
			Details:   map[string]interface{}{"consecutive_mismatches": n},
		}
		c.applyPlan(ctx, c.policy.ProposeCorrection(finding, c.state()), goal)
	}

	if every := c.cfg.Audit.EveryCycles; every > 0 {
		if cycles, err := c.records.CyclesRun(); err == nil && cycles > 0 && cycles%every == 0 {
			c.runAudit(ctx, goal)
		}
	}

	if c.policy.ShouldEscalate() {
		report := c.escalationReport()
		logging.BootError("halting the loop: %s", report)
		return result, fmt.Errorf("correction pressure exceeded safe limits: %s", report)
	}
	return result, nil
}

// RunOnce runs a single supervised iteration with an optional
// operator directive. Used by the one-shot cycle command.
func (c *Controller) RunOnce(ctx context.Context, directive string) (CycleResult, error) {
	if directive != "" {
		c.directive = directive
	}
	return c.Step(ctx)
}

// runAudit executes the full detector suite over recent history and
// applies a correction plan per finding.
func (c *Controller) runAudit(ctx context.Context, goal goals.Goal) {
	history, err := c.records.Recent(auditHistoryWindow)
	if err != nil {
		logging.AuditorDebug("audit skipped, history unavailable: %v", err)
		return
	}
	scores, err := c.records.RecentGrowthScores(auditGrowthWindow)
	if err != nil {
		logging.AuditorDebug("growth samples unavailable: %v", err)
	}

	report := c.audit.RunFullAudit(history, scores, c.cfg.Evolution.Focus)
	logging.Auditor("audit: health=%s findings=%d alignment=%.2f",
		report.OverallHealth, len(report.Findings), report.AlignmentScore)

	for _, f := range report.Findings {
		plan := c.policy.ProposeCorrection(correction.FindingFromResult(f), c.state())
		c.applyPlan(ctx, plan, goal)
	}
}

// applyPlan executes one correction plan against the loop.
func (c *Controller) applyPlan(ctx context.Context, plan correction.Plan, goal goals.Goal) {
	switch plan.Type {
	case correction.TypeNone:
		return

	case correction.TypeResetContext:
		c.orch.ResetMemory()

	case correction.TypeAdjustStrategy:
		mode, _ := plan.Params["target_mode"].(string)
		if mode == "" {
			mode = "cautious"
		}
		c.directive = fmt.Sprintf("Strategy adjustment (%s): %s", mode, plan.Reason)

	case correction.TypeSkipGoal:
		if goal.ID == "" {
			return
		}
		if err := c.goals.Store().UpdateStatus(goal.ID, goals.StatusDeferred); err != nil {
			logging.GoalsWarn("failed to defer goal %s: %v", goal.ID, err)
		} else {
			logging.Goals("goal [%s] deferred by correction: %s", goal.ID, plan.Reason)
		}

	case correction.TypeDeepSleep:
		seconds := 300
		switch v := plan.Params["sleep_duration_seconds"].(type) {
		case int:
			seconds = v
		case float64:
			seconds = int(v)
		}
		c.extraSleep += time.Duration(seconds) * time.Second
		logging.Correction("deep sleep scheduled for %ds", seconds)

	case correction.TypeForceEvolution:
		c.forceEvolution(ctx, plan)

	case correction.TypeEmergencyDump:
		c.writeEmergencyDump(plan)
	}
}

// forceEvolution runs an immediate extra cycle, optionally on the
// alternative model, with an explicit do-something directive.
func (c *Controller) forceEvolution(ctx context.Context, plan correction.Plan) {
	useAlt, _ := plan.Params["use_alternative_model"].(bool)
	if sw, ok := c.gen.(ModelSwitcher); ok && useAlt {
		sw.UseAlternativeModel(true)
		defer sw.UseAlternativeModel(false)
	}

	directive := "Forced evolution: " + plan.Reason +
		". Make one concrete, minimal improvement now; do not answer that no change is needed."
	result := c.orch.RunCycle(ctx, directive)
	if result.Success {
		c.consecFailures = 0
		logging.Correction("forced evolution succeeded: %d file(s)", len(result.FilesModified))
	} else {
		c.consecFailures++
		logging.CorrectionWarn("forced evolution failed: %s", result.Error)
	}
}

// writeEmergencyDump persists a diagnostic snapshot for offline
// recovery: the triggering plan, correction stats, recent history.
func (c *Controller) writeEmergencyDump(plan correction.Plan) {
	dir := filepath.Join(c.cfg.StateDir(), "emergency_dumps")
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.CorrectionWarn("cannot create dump directory: %v", err)
		return
	}

	recent, _ := c.records.Recent(20)
	payload := map[string]interface{}{
		"timestamp":        time.Now(),
		"plan":             plan,
		"correction_stats": c.policy.Stats(),
		"recent_entries":   recent,
		"consec_failures":  c.consecFailures,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		logging.CorrectionWarn("cannot marshal emergency dump: %v", err)
		return
	}

	path := filepath.Join(dir, "dump_"+time.Now().Format("20060102_150405")+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		logging.CorrectionWarn("cannot write emergency dump: %v", err)
		return
	}
	logging.Correction("emergency state dump written to %s", path)
}

func (c *Controller) state() correction.CognitiveState {
	return correction.CognitiveState{
		RecentFailures:  c.consecFailures,
		ConfidenceScore: c.lastConfidence,
	}
}

func (c *Controller) escalationReport() string {
	stats := c.policy.Stats()
	return fmt.Sprintf("%d corrections proposed recently (most common: %s); operator review required",
		stats.TotalCorrections, stats.MostCommon)
}
