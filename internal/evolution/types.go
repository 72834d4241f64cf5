// Package evolution is the supervisory control loop. The Orchestrator
// turns one generator proposal into validated, tested, committed
// changes; the Controller wraps it in a daemon that schedules cycles,
// runs cognitive audits, and applies correction plans.
package evolution

import (
	"context"

	"github.com/theRebelliousNerd/evoloop/internal/generator"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"
)

// Cycle actions reported in CycleResult.Action.
const (
	ActionEvolved          = "evolved"
	ActionNoEvolution      = "no_evolution"
	ActionSkippedNoChange  = "skipped_no_change"
	ActionRolledBack       = "rolled_back"
	ActionGenerationFailed = "generation_failed"
	ActionSnapshotFailed   = "snapshot_failed"
)

// CycleResult records the outcome of one evolution cycle.
type CycleResult struct {
	Success       bool     `json:"success"`
	Action        string   `json:"action"`
	Intent        string   `json:"intent,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	Error         string   `json:"error,omitempty"`
	SyncStatus    string   `json:"sync_status,omitempty"`
	CommitHash    string   `json:"commit_hash,omitempty"`
}

// IdeaGenerator proposes changes and answers one-off questions.
type IdeaGenerator interface {
	ProposeChanges(ctx context.Context, snapshot, userIntent, hints string) (*generator.Proposal, error)
	Ask(ctx context.Context, prompt string) (string, error)
}

// ModelSwitcher is implemented by generators that can swap to a
// stronger model for forced evolution attempts.
type ModelSwitcher interface {
	UseAlternativeModel(on bool)
}

// Validator screens proposed file content before it touches the tree.
type Validator interface {
	Validate(code, filename string) (bool, string)
}

// TestRunner runs the unit test gate.
type TestRunner interface {
	RunUnitTests(ctx context.Context) (bool, string)
}

// FileApplier writes proposals into the working tree and restores
// backed-up versions on rollback.
type FileApplier interface {
	IsProtected(filename string) bool
	Apply(filename, code string) (bool, string)
	Rollback(filename string) bool
}

// Gateway is the version-control surface one cycle needs.
type Gateway interface {
	SyncBeforeCommit(ctx context.Context) (bool, string)
	CommitAndPush(ctx context.Context, message string) (bool, string, string)
	VerifyPush(ctx context.Context, expectedHash string) (bool, string)
}

// Ledger is the append/counter surface the orchestrator writes.
type Ledger interface {
	Append(e ledger.Entry) error
	Recent(limit int) ([]ledger.Entry, error)
	AddGrowth(points int) (int, error)
	RecordGrowthSample() (int, error)
	IncrementCycles() (int, error)
}

// RecordStore extends Ledger with the read surface the controller's
// audits and reports consume.
type RecordStore interface {
	Ledger
	RecentGrowthScores(limit int) ([]int, error)
	GrowthScore() (int, error)
	CyclesRun() (int, error)
	Count() (int, error)
}
