// Package correction turns classified audit findings into remedial
// action plans. The mapping is a fixed policy table keyed by finding
// severity and error type; the only state the engine keeps is a bounded
// history of proposed plans, used by the escalation heuristic.
package correction

import (
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/auditor"
)

// CorrectionType names a remedial action.
type CorrectionType string

const (
	TypeNone           CorrectionType = "none"
	TypeResetContext   CorrectionType = "reset_context"
	TypeAdjustStrategy CorrectionType = "adjust_strategy"
	TypeForceEvolution CorrectionType = "force_evolution"
	TypeSkipGoal       CorrectionType = "skip_goal"
	TypeDeepSleep      CorrectionType = "deep_sleep"
	TypeEmergencyDump  CorrectionType = "emergency_dump"
)

// Plan is a prescribed remedial action. Plans are appended to the
// bounded history for escalation analysis; they are never replayed or
// undone by this package.
type Plan struct {
	Type        CorrectionType         `json:"type"`
	Reason      string                 `json:"reason"`
	Priority    int                    `json:"priority"`
	Params      map[string]interface{} `json:"params,omitempty"`
	SuggestedAt time.Time              `json:"suggested_at"`
}

// Finding is the classified audit verdict fed to the policy engine.
type Finding struct {
	Severity  auditor.Severity
	ErrorType auditor.ErrorType
	Details   map[string]interface{}
}

// FindingFromResult adapts a detector result into a policy input.
func FindingFromResult(r *auditor.Result) Finding {
	if r == nil {
		return Finding{Severity: auditor.SeverityInfo, ErrorType: auditor.ErrorNone}
	}
	return Finding{
		Severity:  r.Severity,
		ErrorType: r.ErrorType,
		Details:   r.Details,
	}
}

// CognitiveState is the loop-level snapshot corrections consider
// alongside the finding itself.
type CognitiveState struct {
	// RecentFailures counts consecutive failed cycles.
	RecentFailures int
	// ConfidenceScore is the latest evaluation confidence, when known.
	ConfidenceScore float64
}

// Stats summarizes the recorded correction history.
type Stats struct {
	TotalCorrections int                    `json:"total_corrections"`
	ByType           map[CorrectionType]int `json:"by_type"`
	AvgPriority      float64                `json:"avg_priority"`
	MostCommon       CorrectionType         `json:"most_common,omitempty"`
}
