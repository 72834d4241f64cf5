package correction

import (
	"strings"
	"testing"

	"github.com/theRebelliousNerd/evoloop/internal/auditor"
)

func finding(severity auditor.Severity, errType auditor.ErrorType) Finding {
	return Finding{Severity: severity, ErrorType: errType}
}

// =============================================================================
// POLICY TABLE
// =============================================================================

func TestPolicyTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		finding      Finding
		state        CognitiveState
		wantType     CorrectionType
		wantPriority int
		wantParam    string
		wantValue    interface{}
	}{
		{
			name:         "critical infinite loop resets full context",
			finding:      finding(auditor.SeverityCritical, auditor.ErrorInfiniteLoop),
			wantType:     TypeResetContext,
			wantPriority: 10,
			wantParam:    "scope",
			wantValue:    "full_context",
		},
		{
			name:         "critical roadmap deviation skips the goal",
			finding:      finding(auditor.SeverityCritical, auditor.ErrorRoadmapDeviation),
			wantType:     TypeSkipGoal,
			wantPriority: 8,
		},
		{
			name:         "critical memory corruption dumps state",
			finding:      finding(auditor.SeverityCritical, auditor.ErrorMemoryCorruption),
			wantType:     TypeEmergencyDump,
			wantPriority: 10,
			wantParam:    "include_vectors",
			wantValue:    true,
		},
		{
			name:         "unclassified critical also dumps",
			finding:      finding(auditor.SeverityCritical, auditor.ErrorNone),
			wantType:     TypeEmergencyDump,
			wantPriority: 10,
		},
		{
			name:         "stagnation without failures adjusts strategy",
			finding:      finding(auditor.SeverityWarning, auditor.ErrorStagnation),
			state:        CognitiveState{RecentFailures: 4},
			wantType:     TypeAdjustStrategy,
			wantPriority: 7,
			wantParam:    "target_mode",
			wantValue:    "accelerated",
		},
		{
			name:         "stagnation with repeated failures forces evolution",
			finding:      finding(auditor.SeverityWarning, auditor.ErrorStagnation),
			state:        CognitiveState{RecentFailures: 5},
			wantType:     TypeForceEvolution,
			wantPriority: 8,
			wantParam:    "use_alternative_model",
			wantValue:    true,
		},
		{
			name:         "low confidence sleeps",
			finding:      finding(auditor.SeverityWarning, auditor.ErrorLowConfidence),
			state:        CognitiveState{ConfidenceScore: 0.31},
			wantType:     TypeDeepSleep,
			wantPriority: 5,
			wantParam:    "sleep_duration_seconds",
			wantValue:    300,
		},
		{
			name:         "repetitive pattern clears short-term memory",
			finding:      finding(auditor.SeverityWarning, auditor.ErrorRepetitivePattern),
			wantType:     TypeResetContext,
			wantPriority: 6,
			wantParam:    "scope",
			wantValue:    "short_term_memory",
		},
		{
			name:         "unclassified warning goes cautious",
			finding:      finding(auditor.SeverityWarning, auditor.ErrorNone),
			wantType:     TypeAdjustStrategy,
			wantPriority: 4,
			wantParam:    "target_mode",
			wantValue:    "cautious",
		},
		{
			name:         "info needs no action",
			finding:      finding(auditor.SeverityInfo, auditor.ErrorNone),
			wantType:     TypeNone,
			wantPriority: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			plan := NewManager().ProposeCorrection(tc.finding, tc.state)
			if plan.Type != tc.wantType {
				t.Fatalf("type = %s, want %s", plan.Type, tc.wantType)
			}
			if plan.Priority != tc.wantPriority {
				t.Errorf("priority = %d, want %d", plan.Priority, tc.wantPriority)
			}
			if plan.Reason == "" {
				t.Error("plan has no reason")
			}
			if plan.SuggestedAt.IsZero() {
				t.Error("SuggestedAt not set")
			}
			if tc.wantParam != "" {
				got, ok := plan.Params[tc.wantParam]
				if !ok {
					t.Fatalf("params missing %q: %v", tc.wantParam, plan.Params)
				}
				if got != tc.wantValue {
					t.Errorf("params[%q] = %v, want %v", tc.wantParam, got, tc.wantValue)
				}
			}
		})
	}
}

func TestStagnationFailureThresholdBoundary(t *testing.T) {
	t.Parallel()

	m := NewManager()
	f := finding(auditor.SeverityWarning, auditor.ErrorStagnation)

	below := m.ProposeCorrection(f, CognitiveState{RecentFailures: 4})
	if below.Type != TypeAdjustStrategy {
		t.Errorf("4 failures: type = %s, want %s", below.Type, TypeAdjustStrategy)
	}
	at := m.ProposeCorrection(f, CognitiveState{RecentFailures: 5})
	if at.Type != TypeForceEvolution {
		t.Errorf("5 failures: type = %s, want %s", at.Type, TypeForceEvolution)
	}
	if at.Params["stagnation_count"] != 5 {
		t.Errorf("stagnation_count = %v, want 5", at.Params["stagnation_count"])
	}
}

func TestLowConfidenceReasonIncludesScore(t *testing.T) {
	t.Parallel()

	plan := NewManager().ProposeCorrection(
		finding(auditor.SeverityWarning, auditor.ErrorLowConfidence),
		CognitiveState{ConfidenceScore: 0.25},
	)
	if !strings.Contains(plan.Reason, "0.25") {
		t.Errorf("reason %q does not mention the confidence score", plan.Reason)
	}
}

func TestUnhandledCriticalReasonNamesType(t *testing.T) {
	t.Parallel()

	plan := NewManager().ProposeCorrection(
		finding(auditor.SeverityCritical, auditor.ErrorStagnation),
		CognitiveState{},
	)
	if plan.Type != TypeEmergencyDump {
		t.Fatalf("type = %s, want %s", plan.Type, TypeEmergencyDump)
	}
	if !strings.Contains(plan.Reason, "stagnation") {
		t.Errorf("reason %q does not name the error type", plan.Reason)
	}
}

func TestFindingFromResult(t *testing.T) {
	t.Parallel()

	f := FindingFromResult(nil)
	if f.Severity != auditor.SeverityInfo || f.ErrorType != auditor.ErrorNone {
		t.Errorf("nil result: got %s/%s, want info/none", f.Severity, f.ErrorType)
	}

	r := &auditor.Result{
		HasIssue:  true,
		Severity:  auditor.SeverityCritical,
		ErrorType: auditor.ErrorInfiniteLoop,
		Details:   map[string]interface{}{"file": "parser.go"},
	}
	f = FindingFromResult(r)
	if f.Severity != auditor.SeverityCritical || f.ErrorType != auditor.ErrorInfiniteLoop {
		t.Errorf("got %s/%s, want critical/infinite_loop", f.Severity, f.ErrorType)
	}
	if f.Details["file"] != "parser.go" {
		t.Errorf("details not carried over: %v", f.Details)
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func TestNonePlansAreNotRecorded(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.ProposeCorrection(finding(auditor.SeverityInfo, auditor.ErrorNone), CognitiveState{})
	m.ProposeCorrection(finding(auditor.SeverityInfo, auditor.ErrorNone), CognitiveState{})
	if got := len(m.History()); got != 0 {
		t.Errorf("history length = %d, want 0", got)
	}

	m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorStagnation), CognitiveState{})
	if got := len(m.History()); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

func TestHistoryCapKeepsNewest(t *testing.T) {
	t.Parallel()

	m := NewManager()
	for i := 0; i < MaxHistory; i++ {
		m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorNone), CognitiveState{})
	}
	// One more, of a distinguishable type, must push the oldest out.
	m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorRepetitivePattern), CognitiveState{})

	history := m.History()
	if len(history) != MaxHistory {
		t.Fatalf("history length = %d, want %d", len(history), MaxHistory)
	}
	if history[len(history)-1].Type != TypeResetContext {
		t.Errorf("newest plan = %s, want %s", history[len(history)-1].Type, TypeResetContext)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorStagnation), CognitiveState{})

	history := m.History()
	history[0].Type = TypeEmergencyDump
	if m.History()[0].Type != TypeAdjustStrategy {
		t.Error("mutation of the returned slice leaked into the manager")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	m := NewManager()
	if s := m.Stats(); s.TotalCorrections != 0 || s.MostCommon != "" {
		t.Fatalf("empty stats = %+v", s)
	}

	// Two adjust_strategy (p7), one reset_context (p6).
	m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorStagnation), CognitiveState{})
	m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorStagnation), CognitiveState{})
	m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorRepetitivePattern), CognitiveState{})

	s := m.Stats()
	if s.TotalCorrections != 3 {
		t.Errorf("total = %d, want 3", s.TotalCorrections)
	}
	if s.ByType[TypeAdjustStrategy] != 2 || s.ByType[TypeResetContext] != 1 {
		t.Errorf("by_type = %v", s.ByType)
	}
	want := (7.0 + 7.0 + 6.0) / 3.0
	if s.AvgPriority != want {
		t.Errorf("avg priority = %v, want %v", s.AvgPriority, want)
	}
	if s.MostCommon != TypeAdjustStrategy {
		t.Errorf("most common = %s, want %s", s.MostCommon, TypeAdjustStrategy)
	}
}

func TestStatsTieGoesToFirstRecorded(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorRepetitivePattern), CognitiveState{})
	m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorStagnation), CognitiveState{})

	if s := m.Stats(); s.MostCommon != TypeResetContext {
		t.Errorf("most common = %s, want %s (first recorded)", s.MostCommon, TypeResetContext)
	}
}

// =============================================================================
// ESCALATION
// =============================================================================

// fill records n low-priority plans so the escalation minimum is met
// without tripping either trigger.
func fill(m *Manager, n int) {
	for i := 0; i < n; i++ {
		m.ProposeCorrection(finding(auditor.SeverityWarning, auditor.ErrorNone), CognitiveState{})
	}
}

// highPriority records a priority-10 plan that is not an emergency dump.
func highPriority(m *Manager) {
	m.ProposeCorrection(finding(auditor.SeverityCritical, auditor.ErrorInfiniteLoop), CognitiveState{})
}

func TestEscalateNeedsMinimumHistory(t *testing.T) {
	t.Parallel()

	m := NewManager()
	highPriority(m)
	highPriority(m)
	highPriority(m)
	if m.ShouldEscalate() {
		t.Error("escalated with fewer than 5 recorded plans")
	}
}

func TestEscalateOnThreeHighPriority(t *testing.T) {
	t.Parallel()

	m := NewManager()
	fill(m, 4)
	highPriority(m)
	highPriority(m)
	if m.ShouldEscalate() {
		t.Fatal("escalated on only two high-priority plans")
	}
	highPriority(m)
	if !m.ShouldEscalate() {
		t.Error("three high-priority plans in the last ten should escalate")
	}
}

func TestEscalateOnTwoEmergencyDumps(t *testing.T) {
	t.Parallel()

	m := NewManager()
	fill(m, 4)
	m.ProposeCorrection(finding(auditor.SeverityCritical, auditor.ErrorMemoryCorruption), CognitiveState{})
	if m.ShouldEscalate() {
		t.Fatal("escalated on a single emergency dump")
	}
	m.ProposeCorrection(finding(auditor.SeverityCritical, auditor.ErrorMemoryCorruption), CognitiveState{})
	if !m.ShouldEscalate() {
		t.Error("two emergency dumps in the last ten should escalate")
	}
}

func TestEscalateOnlyConsidersRecentWindow(t *testing.T) {
	t.Parallel()

	m := NewManager()
	highPriority(m)
	highPriority(m)
	highPriority(m)
	fill(m, 10)
	if m.ShouldEscalate() {
		t.Error("high-priority plans outside the last ten still escalate")
	}
}

func TestEscalateCountsAcrossMixedWindow(t *testing.T) {
	t.Parallel()

	// Two p10 resets plus one p8 skip inside the window: three plans at
	// priority >= 8 even though only two share a type.
	m := NewManager()
	fill(m, 3)
	highPriority(m)
	highPriority(m)
	m.ProposeCorrection(finding(auditor.SeverityCritical, auditor.ErrorRoadmapDeviation), CognitiveState{})
	if !m.ShouldEscalate() {
		t.Error("mixed high-priority plans should still escalate")
	}
}
