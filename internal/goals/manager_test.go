package goals

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/ledger"
)

type mockLLM struct {
	response string
	err      error
	prompts  []string
}

func (m *mockLLM) Ask(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

// =============================================================================
// GOAL GENERATION TESTS
// =============================================================================

func TestEnsureActiveGoalReturnsExisting(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	store.Add("lower priority", 4, nil)
	wantID, _ := store.Add("highest priority", 9, nil)

	llm := &mockLLM{response: "NEXT_GOAL: should never be asked"}
	mgr := NewManager(store, llm)

	goal, err := mgr.EnsureActiveGoal(context.Background(), "step_7")
	if err != nil {
		t.Fatalf("EnsureActiveGoal: %v", err)
	}
	if goal.ID != wantID {
		t.Errorf("expected highest-priority goal %s, got %s", wantID, goal.ID)
	}
	if len(llm.prompts) != 0 {
		t.Error("generator must not be called when an actionable goal exists")
	}
	if store.Count() != 2 {
		t.Errorf("store mutated: %d goals", store.Count())
	}
}

func TestEnsureActiveGoalGenerates(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	llm := &mockLLM{response: "NEXT_GOAL: Add structured retries to the sync client"}
	mgr := NewManager(store, llm)

	goal, err := mgr.EnsureActiveGoal(context.Background(), "step_7_meta_cognition")
	if err != nil {
		t.Fatalf("EnsureActiveGoal: %v", err)
	}
	if goal.Content != "Add structured retries to the sync client" {
		t.Errorf("content = %q", goal.Content)
	}
	if goal.Status != StatusPending {
		t.Errorf("generated goals must start pending, got %s", goal.Status)
	}
	if goal.Priority != 7 {
		t.Errorf("generated goal priority = %d, want 7", goal.Priority)
	}
	if goal.Metadata["source"] != "auto_generated" {
		t.Errorf("source = %q", goal.Metadata["source"])
	}
	if goal.Metadata["focus"] != "step_7_meta_cognition" {
		t.Errorf("focus = %q", goal.Metadata["focus"])
	}

	if len(llm.prompts) != 1 {
		t.Fatalf("expected 1 generator call, got %d", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[0], "step_7_meta_cognition") {
		t.Error("prompt should carry the roadmap focus")
	}
	if !strings.Contains(llm.prompts[0], "NEXT_GOAL:") {
		t.Error("prompt should request the tagged format")
	}
}

func TestEnsureActiveGoalDefaultOnError(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	llm := &mockLLM{err: errors.New("model unavailable")}
	mgr := NewManager(store, llm)

	goal, err := mgr.EnsureActiveGoal(context.Background(), "step_7")
	if err != nil {
		t.Fatalf("EnsureActiveGoal: %v", err)
	}
	if goal.Content != defaultGoalContent {
		t.Errorf("expected default goal, got %q", goal.Content)
	}
	if goal.Priority != 5 {
		t.Errorf("default goal priority = %d, want 5", goal.Priority)
	}
	if goal.Metadata["source"] != "default_fallback" {
		t.Errorf("source = %q", goal.Metadata["source"])
	}
}

func TestEnsureActiveGoalDefaultOnUnparseable(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	llm := &mockLLM{response: "hmm\nok\nshort"}
	mgr := NewManager(store, llm)

	goal, err := mgr.EnsureActiveGoal(context.Background(), "step_7")
	if err != nil {
		t.Fatalf("EnsureActiveGoal: %v", err)
	}
	if goal.Metadata["source"] != "default_fallback" {
		t.Errorf("expected default fallback, got source %q content %q", goal.Metadata["source"], goal.Content)
	}
}

func TestSeedDefaults(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	mgr := NewManager(store, nil)

	mgr.SeedDefaults("step_7")
	if store.Count() != 3 {
		t.Fatalf("expected 3 seeded goals, got %d", store.Count())
	}

	active := store.ActiveGoals(3)
	wantPriorities := []int{7, 6, 5}
	for i, want := range wantPriorities {
		if active[i].Priority != want {
			t.Errorf("seed %d: priority %d, want %d", i, active[i].Priority, want)
		}
	}

	// Seeding is idempotent on a non-empty store
	mgr.SeedDefaults("step_7")
	if store.Count() != 3 {
		t.Errorf("re-seeding added goals: %d", store.Count())
	}
}

// =============================================================================
// GOAL RESPONSE PARSING TESTS
// =============================================================================

func TestParseGoalResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "tagged next_goal",
			response: "NEXT_GOAL: Implement priority ordering in the goal store",
			want:     "Implement priority ordering in the goal store",
		},
		{
			name:     "tagged next_goal lowercase",
			response: "next_goal: Implement priority ordering in the goal store",
			want:     "Implement priority ordering in the goal store",
		},
		{
			name:     "korean tag",
			response: "목표: 목표 저장소에 우선순위 정렬 구현",
			want:     "목표 저장소에 우선순위 정렬 구현",
		},
		{
			name:     "plain goal tag",
			response: "Goal: Harden the git sync path against rebase conflicts",
			want:     "Harden the git sync path against rebase conflicts",
		},
		{
			name:     "bracketed and quoted",
			response: `NEXT_GOAL: "[Refactor the cycle runner into stages]"`,
			want:     "Refactor the cycle runner into stages",
		},
		{
			name:     "tag buried in prose",
			response: "Sure, here is my suggestion.\nNEXT_GOAL: Expand validator coverage to JSON files\nLet me know.",
			want:     "Expand validator coverage to JSON files",
		},
		{
			name:     "short tagged value falls through to line scan",
			response: "NEXT_GOAL: tidy\nThe system should improve its rollback handling next.",
			want:     "The system should improve its rollback handling next.",
		},
		{
			name:     "first long line fallback",
			response: "ok\nThe next goal should be improving test coverage across packages.",
			want:     "The next goal should be improving test coverage across packages.",
		},
		{
			name:     "comment lines skipped in fallback",
			response: "# this is a heading longer than twenty characters\nImprove the evolution loop's rollback bookkeeping.",
			want:     "Improve the evolution loop's rollback bookkeeping.",
		},
		{
			name:     "nothing usable",
			response: "ok\nshort\nlines",
			want:     "",
		},
		{
			name:     "empty response",
			response: "",
			want:     "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseGoalResponse(tc.response); got != tc.want {
				t.Errorf("ParseGoalResponse(%q) = %q, want %q", tc.response, got, tc.want)
			}
		})
	}
}

// =============================================================================
// EVALUATION PARSING TESTS
// =============================================================================

func TestParseEvaluation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name           string
		response       string
		wantStatus     EvalStatus
		wantReason     string
		wantConfidence float64
	}{
		{
			name:           "completed with reason",
			response:       "STATUS: completed\nREASON: All subtasks landed and tests pass",
			wantStatus:     EvalCompleted,
			wantReason:     "All subtasks landed and tests pass",
			wantConfidence: 0.8,
		},
		{
			name:           "case insensitive status",
			response:       "status: BLOCKED\nreason: External dependency is missing",
			wantStatus:     EvalBlocked,
			wantReason:     "External dependency is missing",
			wantConfidence: 0.8,
		},
		{
			name:           "missing status defaults to in_progress",
			response:       "The work continues; more cycles are needed.",
			wantStatus:     EvalInProgress,
			wantReason:     "The work continues; more cycles are needed.",
			wantConfidence: 0.3,
		},
		{
			name:           "missing reason uses first non-status line",
			response:       "STATUS: in_progress\nStill iterating on the parser changes.",
			wantStatus:     EvalInProgress,
			wantReason:     "Still iterating on the parser changes.",
			wantConfidence: 0.8,
		},
		{
			name:           "empty response",
			response:       "",
			wantStatus:     EvalInProgress,
			wantReason:     "no evaluation response",
			wantConfidence: 0.3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseEvaluation(tc.response)
			if got.Status != tc.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tc.wantStatus)
			}
			if got.Reason != tc.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tc.wantReason)
			}
			if got.Confidence != tc.wantConfidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tc.wantConfidence)
			}
		})
	}
}

func TestParseEvaluationTruncatesFallbackReason(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 400)
	got := ParseEvaluation(long)
	if len(got.Reason) > 203 {
		t.Errorf("fallback reason not truncated: %d chars", len(got.Reason))
	}
}

// =============================================================================
// COMPLETION EVALUATION TESTS
// =============================================================================

func recentEntries() []ledger.Entry {
	return []ledger.Entry{
		{
			Timestamp:   time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
			Action:      "Add retry to fetcher",
			File:        "fetcher.go",
			Description: "resilience work",
			Status:      ledger.StatusSuccess,
		},
	}
}

func TestEvaluateCompletionSkipsFailedCycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, _ := store.Add("cycle goal", 5, nil)
	goal, _ := store.Get(id)

	llm := &mockLLM{response: "STATUS: completed\nREASON: looks done"}
	mgr := NewManager(store, llm)

	result := mgr.EvaluateCompletion(context.Background(), goal, false, recentEntries())
	if result.Status != EvalInProgress {
		t.Errorf("failed cycle must yield in_progress, got %s", result.Status)
	}
	if result.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", result.Confidence)
	}
	if len(llm.prompts) != 0 {
		t.Error("generator must not be consulted after a failed cycle")
	}

	unchanged, _ := store.Get(id)
	if unchanged.Status != StatusPending {
		t.Errorf("goal status changed to %s", unchanged.Status)
	}
}

func TestEvaluateCompletionNoGoal(t *testing.T) {
	t.Parallel()
	mgr := NewManager(newTestStore(t), &mockLLM{})

	result := mgr.EvaluateCompletion(context.Background(), Goal{}, true, nil)
	if result.Status != EvalFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	if result.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", result.Confidence)
	}
}

func TestEvaluateCompletionCompletesGoal(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, _ := store.Add("completable goal", 5, nil)
	goal, _ := store.Get(id)

	llm := &mockLLM{response: "STATUS: completed\nREASON: Implementation and tests landed"}
	mgr := NewManager(store, llm)

	result := mgr.EvaluateCompletion(context.Background(), goal, true, recentEntries())
	if result.Status != EvalCompleted {
		t.Fatalf("status = %s", result.Status)
	}

	updated, _ := store.Get(id)
	if updated.Status != StatusCompleted {
		t.Errorf("goal not transitioned: %s", updated.Status)
	}
	if !strings.Contains(updated.Metadata["notes"], "Implementation and tests landed") {
		t.Errorf("evaluation note missing: %q", updated.Metadata["notes"])
	}

	if len(llm.prompts) != 1 {
		t.Fatalf("expected 1 evaluation call, got %d", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[0], "completable goal") {
		t.Error("evaluation prompt should include the goal content")
	}
	if !strings.Contains(llm.prompts[0], "fetcher.go") {
		t.Error("evaluation prompt should include recent history")
	}
}

func TestEvaluateCompletionBlockedFailsGoal(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, _ := store.Add("blockable goal", 5, nil)
	goal, _ := store.Get(id)

	llm := &mockLLM{response: "STATUS: blocked\nREASON: Requires credentials that are not configured"}
	mgr := NewManager(store, llm)

	result := mgr.EvaluateCompletion(context.Background(), goal, true, nil)
	if result.Status != EvalBlocked {
		t.Fatalf("status = %s", result.Status)
	}

	updated, _ := store.Get(id)
	if updated.Status != StatusFailed {
		t.Errorf("blocked goal should be marked failed, got %s", updated.Status)
	}
}

func TestEvaluateCompletionInProgressKeepsGoal(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, _ := store.Add("ongoing goal", 5, nil)
	goal, _ := store.Get(id)

	llm := &mockLLM{response: "STATUS: in_progress\nREASON: Half the files are converted"}
	mgr := NewManager(store, llm)

	result := mgr.EvaluateCompletion(context.Background(), goal, true, nil)
	if result.Status != EvalInProgress {
		t.Fatalf("status = %s", result.Status)
	}

	updated, _ := store.Get(id)
	if updated.Status != StatusPending {
		t.Errorf("in_progress evaluation must not change status, got %s", updated.Status)
	}
	if !strings.Contains(updated.Metadata["notes"], "Half the files are converted") {
		t.Errorf("expected evaluation note, got %q", updated.Metadata["notes"])
	}
}

func TestEvaluateCompletionEmptyHistoryPrompt(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, _ := store.Add("history goal", 5, nil)
	goal, _ := store.Get(id)

	llm := &mockLLM{response: "STATUS: in_progress\nREASON: fine"}
	mgr := NewManager(store, llm)

	mgr.EvaluateCompletion(context.Background(), goal, true, nil)
	if len(llm.prompts) != 1 {
		t.Fatalf("expected 1 call, got %d", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[0], "no recent evolution history") {
		t.Error("empty history should be stated in the prompt")
	}
}
