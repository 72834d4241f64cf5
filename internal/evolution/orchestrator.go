package evolution

import (
	"context"
	"fmt"
	"strings"

	"github.com/theRebelliousNerd/evoloop/internal/generator"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"
	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

const (
	// growthPerFile is the growth score awarded per applied file.
	growthPerFile = 10

	// recentFilesCap bounds the avoid-list carried between cycles;
	// avoidHintCount is how many of those the hints actually name.
	recentFilesCap = 10
	avoidHintCount = 5

	// historyHintCount is how many ledger entries the hints replay.
	historyHintCount = 5

	// testReportCap bounds how much of a failing test report lands in
	// the ledger and the cycle result.
	testReportCap = 200

	// commitSubjectCap bounds the intent fragment in commit messages.
	commitSubjectCap = 80
)

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Generator IdeaGenerator
	Validator Validator
	Applier   FileApplier
	Tests     TestRunner
	Git       Gateway
	Records   Ledger
	Snapshot  *Snapshotter
	Focus     string
}

// Orchestrator runs one evolution cycle at a time: snapshot, propose,
// validate, apply, test, commit. It carries the short-term memory the
// anti-stagnation hints are built from. Not safe for concurrent use;
// one controller owns it.
type Orchestrator struct {
	gen   IdeaGenerator
	valid Validator
	apply FileApplier
	tests TestRunner
	git   Gateway
	rec   Ledger
	snap  *Snapshotter
	focus string

	recentFiles    []string
	noChangeCount  int
	pushMismatches int
}

// NewOrchestrator creates a cycle orchestrator.
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		gen:   d.Generator,
		valid: d.Validator,
		apply: d.Applier,
		tests: d.Tests,
		git:   d.Git,
		rec:   d.Records,
		snap:  d.Snapshot,
		focus: d.Focus,
	}
}

// ConsecutiveMismatches reports how many commits in a row ended
// unverified on the remote.
func (o *Orchestrator) ConsecutiveMismatches() int {
	return o.pushMismatches
}

// NoChangeStreak reports how many cycles in a row applied nothing.
func (o *Orchestrator) NoChangeStreak() int {
	return o.noChangeCount
}

// ResetMemory clears the short-term hint state. Correction plans use
// it to break the loop out of a rut.
func (o *Orchestrator) ResetMemory() {
	o.recentFiles = nil
	o.noChangeCount = 0
	logging.Evolution("short-term cycle memory cleared")
}

// RunCycle executes one full evolution cycle. userIntent is an
// optional directive (active goal, forced-evolution order) folded into
// the planner prompt. Collaborator failures surface in the result, not
// as errors; the daemon decides how to react.
func (o *Orchestrator) RunCycle(ctx context.Context, userIntent string) CycleResult {
	cycle, err := o.rec.IncrementCycles()
	if err != nil {
		logging.EvolutionWarn("cycle counter update failed: %v", err)
	}
	log := logging.WithCycle(logging.CategoryEvolution, cycle)
	timer := logging.StartTimer(logging.CategoryEvolution, "evolution cycle")
	defer timer.Stop()

	log.Info("cycle starting (no-change streak %d)", o.noChangeCount)

	snapshot, err := o.snap.Build(o.focus)
	if err != nil {
		return o.skipped(log, CycleResult{
			Action: ActionSnapshotFailed,
			Error:  fmt.Sprintf("snapshot failed: %v", err),
		})
	}

	proposal, err := o.gen.ProposeChanges(ctx, snapshot, userIntent, o.buildHints())
	if err != nil {
		return o.skipped(log, CycleResult{
			Action: ActionGenerationFailed,
			Error:  err.Error(),
		})
	}

	if proposal.NoEvolution {
		o.noChangeCount++
		log.Info("generator declined to evolve: %s", proposal.Reason)
		return o.skipped(log, CycleResult{
			Action: ActionNoEvolution,
			Intent: proposal.Intent,
			Error:  proposal.Reason,
		})
	}

	intent := proposal.Intent
	applied := o.applyUpdates(log, proposal.Updates, intent)

	if len(applied) == 0 {
		o.noChangeCount++
		return o.skipped(log, CycleResult{
			Action: ActionSkippedNoChange,
			Intent: intent,
			Error:  "No actual changes (identical/protected/invalid files skipped)",
		})
	}

	o.noChangeCount = 0
	o.rememberFiles(applied)
	// AddGrowth records its own sample, so this cycle must not call
	// RecordGrowthSample as well.
	if _, err := o.rec.AddGrowth(growthPerFile * len(applied)); err != nil {
		log.Warn("growth update failed: %v", err)
	}

	if passed, report := o.tests.RunUnitTests(ctx); !passed {
		return o.rollback(log, applied, intent, report)
	}
	log.Info("test gate passed for %d file(s)", len(applied))

	return o.commit(ctx, log, applied, intent)
}

// applyUpdates runs the per-file gauntlet: protection, validation,
// apply. Every applied file gets a success ledger entry carrying the
// intent; those entries stay even if the cycle later rolls back.
func (o *Orchestrator) applyUpdates(log *logging.CycleLogger, updates []generator.FileUpdate, intent string) []string {
	var applied []string
	for _, up := range updates {
		if o.apply.IsProtected(up.Filename) {
			log.Warn("skipping protected file %s", up.Filename)
			continue
		}
		if ok, msg := o.valid.Validate(up.Code, up.Filename); !ok {
			log.Warn("validation rejected %s: %s", up.Filename, msg)
			continue
		}
		ok, msg := o.apply.Apply(up.Filename, up.Code)
		if !ok {
			log.Info("apply skipped %s: %s", up.Filename, msg)
			continue
		}
		applied = append(applied, up.Filename)

		if err := o.rec.Append(ledger.Entry{
			Type:        "evolution",
			Action:      "update",
			File:        up.Filename,
			Description: intent,
			Status:      ledger.StatusSuccess,
		}); err != nil {
			log.Warn("ledger append failed for %s: %v", up.Filename, err)
		}
	}
	return applied
}

// rollback restores every applied file and records one failed entry
// covering the whole batch.
func (o *Orchestrator) rollback(log *logging.CycleLogger, applied []string, intent, report string) CycleResult {
	log.Error("test gate failed, rolling back %d file(s)", len(applied))
	for _, f := range applied {
		if !o.apply.Rollback(f) {
			log.Error("rollback failed for %s; manual recovery may be needed", f)
		}
	}

	failure := "Unit test failed: " + truncate(report, testReportCap)
	if err := o.rec.Append(ledger.Entry{
		Type:        "evolution",
		Action:      "rollback",
		File:        strings.Join(applied, ","),
		Description: "Test Failure",
		Status:      ledger.StatusFailed,
		Error:       failure,
	}); err != nil {
		log.Warn("ledger append failed for rollback: %v", err)
	}

	return o.logResult(log, CycleResult{
		Action:        ActionRolledBack,
		Intent:        intent,
		FilesModified: applied,
		Error:         failure,
	})
}

// commit syncs, commits, pushes, and verifies. Push and verification
// problems degrade to SyncStatus warnings; the evolution itself
// already succeeded when the tests passed.
func (o *Orchestrator) commit(ctx context.Context, log *logging.CycleLogger, applied []string, intent string) CycleResult {
	result := CycleResult{
		Success:       true,
		Action:        ActionEvolved,
		Intent:        intent,
		FilesModified: applied,
	}

	if pulled, msg := o.git.SyncBeforeCommit(ctx); pulled {
		log.Info("pre-commit sync: %s", msg)
	}

	ok, msg, hash := o.git.CommitAndPush(ctx, "Evolution: "+truncate(intent, commitSubjectCap))
	result.CommitHash = hash
	result.SyncStatus = msg
	if !ok {
		o.pushMismatches++
		log.Warn("commit/push failed: %s", msg)
		return o.logResult(log, result)
	}
	if hash == "" {
		// Clean tree after apply: nothing reached the index, so there
		// is nothing to verify.
		return o.logResult(log, result)
	}

	verified, vmsg := o.git.VerifyPush(ctx, hash)
	result.SyncStatus = vmsg
	if verified {
		o.pushMismatches = 0
	} else {
		o.pushMismatches++
		log.Warn("push verification failed (%d consecutive): %s", o.pushMismatches, vmsg)
	}

	return o.logResult(log, result)
}

// skipped finalizes a cycle that applied nothing: the growth window
// still advances so the stagnation detector sees a flat sample.
func (o *Orchestrator) skipped(log *logging.CycleLogger, r CycleResult) CycleResult {
	if _, err := o.rec.RecordGrowthSample(); err != nil {
		log.Warn("growth sample failed: %v", err)
	}
	return o.logResult(log, r)
}

func (o *Orchestrator) logResult(log *logging.CycleLogger, r CycleResult) CycleResult {
	if r.Success {
		log.Info("cycle done: action=%s files=%d sync=%s", r.Action, len(r.FilesModified), r.SyncStatus)
	} else {
		log.Info("cycle done: action=%s error=%s", r.Action, truncate(r.Error, 120))
	}
	return r
}

func (o *Orchestrator) rememberFiles(files []string) {
	o.recentFiles = append(o.recentFiles, files...)
	if len(o.recentFiles) > recentFilesCap {
		o.recentFiles = o.recentFiles[len(o.recentFiles)-recentFilesCap:]
	}
}

// buildHints assembles the anti-stagnation context for the planner:
// recent ledger history, an avoid-list of recently touched files, and
// a step-completion directive when the loop keeps producing nothing.
func (o *Orchestrator) buildHints() string {
	var b strings.Builder

	if entries, err := o.rec.Recent(historyHintCount); err == nil && len(entries) > 0 {
		b.WriteString(RecentSummary(entries))
	}

	if len(o.recentFiles) > 0 {
		avoid := o.recentFiles
		if len(avoid) > avoidHintCount {
			avoid = avoid[len(avoid)-avoidHintCount:]
		}
		b.WriteString("\nRecently modified files, prefer different targets: ")
		b.WriteString(strings.Join(avoid, ", "))
		b.WriteString("\n")
	}

	switch {
	case o.noChangeCount >= 3:
		fmt.Fprintf(&b, "\nIMPORTANT: %d consecutive cycles produced no changes. Treat the current Step completed and design the NEXT step of the roadmap instead.\n", o.noChangeCount)
	case o.noChangeCount >= 2:
		b.WriteString("\nNote: the last cycles produced no changes. Pick a different file or feature this time.\n")
	}

	return b.String()
}
