package goals

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/theRebelliousNerd/evoloop/internal/ledger"
	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// LLMClient is the narrow generator surface the manager needs for goal
// generation and completion evaluation.
type LLMClient interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Manager drives autonomous goal creation and completion evaluation on
// top of a Store. It never mutates a goal except through the store's
// explicit transition operations.
type Manager struct {
	store *Store
	llm   LLMClient
}

// NewManager creates a goal lifecycle manager.
func NewManager(store *Store, llm LLMClient) *Manager {
	return &Manager{store: store, llm: llm}
}

// Store exposes the underlying goal store.
func (m *Manager) Store() *Store {
	return m.store
}

// =============================================================================
// GOAL CREATION
// =============================================================================

const defaultGoalContent = "Stabilize the current focus area and extend its test coverage"

// EnsureActiveGoal returns the highest-priority actionable goal, creating
// one when none exists. Existing goals are returned without mutation.
// Generation failures fall back to a hard-coded default goal rather than
// erroring: the loop must always have something to work toward.
func (m *Manager) EnsureActiveGoal(ctx context.Context, focus string) (Goal, error) {
	if active := m.store.ActiveGoals(1); len(active) > 0 {
		return active[0], nil
	}

	logging.Goals("No actionable goal; generating one for focus %q", focus)

	content := ""
	if m.llm != nil {
		response, err := m.llm.Ask(ctx, buildGoalPrompt(focus))
		if err != nil {
			logging.GoalsWarn("Goal generation failed: %v", err)
		} else {
			content = ParseGoalResponse(response)
		}
	}

	priority := 7
	metadata := map[string]string{"source": "auto_generated", "focus": focus}
	if content == "" {
		content = defaultGoalContent
		priority = 5
		metadata["source"] = "default_fallback"
		logging.GoalsWarn("Goal parsing produced nothing; using default goal")
	}

	id, err := m.store.Add(content, priority, metadata)
	if err != nil {
		return Goal{}, fmt.Errorf("failed to add generated goal: %w", err)
	}

	goal, ok := m.store.Get(id)
	if !ok {
		return Goal{}, fmt.Errorf("generated goal %s vanished from store", id)
	}
	return goal, nil
}

// SeedDefaults inserts the starter goals an empty store begins with.
// No-op when the store already holds goals.
func (m *Manager) SeedDefaults(focus string) {
	if m.store.Count() > 0 {
		return
	}
	seeds := []struct {
		content  string
		priority int
	}{
		{fmt.Sprintf("Analyze and understand the code behind the current focus (%s)", focus), 7},
		{"Run and verify the existing test suite", 6},
		{"Explore the next evolution direction", 5},
	}
	for _, seed := range seeds {
		if _, err := m.store.Add(seed.content, seed.priority, map[string]string{"source": "seed", "focus": focus}); err != nil {
			logging.GoalsWarn("Failed to seed goal: %v", err)
			return
		}
	}
	logging.Goals("Seeded %d default goals", len(seeds))
}

func buildGoalPrompt(focus string) string {
	var sb strings.Builder
	sb.WriteString("You are the goal planning module of a self-evolving system.\n\n")
	sb.WriteString("## Current Roadmap Focus\n")
	sb.WriteString(focus)
	sb.WriteString("\n\n")
	sb.WriteString("## Your Task\n")
	sb.WriteString("Define the single next technical goal to pursue right now.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("1. State the goal in one sentence.\n")
	sb.WriteString("2. The goal must be concrete and immediately actionable.\n")
	sb.WriteString("3. Stay within the current focus area.\n\n")
	sb.WriteString("Respond in this EXACT format:\n")
	sb.WriteString("NEXT_GOAL: <goal description>\n")
	return sb.String()
}

// goalPatterns is the ordered fallback chain for extracting a goal from
// free-form generator output. Earlier patterns win.
var goalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)NEXT_GOAL:\s*(.+)`),
	regexp.MustCompile(`(?i)목표:\s*(.+)`),
	regexp.MustCompile(`(?i)Goal:\s*(.+)`),
}

// ParseGoalResponse extracts a goal description from generator output.
// It tries the tagged patterns in order, then falls back to the first
// line longer than 20 characters, and returns "" when nothing usable
// remains.
func ParseGoalResponse(response string) string {
	if response == "" {
		return ""
	}

	for _, pattern := range goalPatterns {
		match := pattern.FindStringSubmatch(response)
		if match == nil {
			continue
		}
		goal := strings.TrimSpace(match[1])
		goal = strings.Trim(goal, `[]"'`)
		if len(goal) > 10 {
			return goal
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !strings.HasPrefix(line, "#") {
			return line
		}
	}

	return ""
}

// =============================================================================
// COMPLETION EVALUATION
// =============================================================================

// EvaluateCompletion judges whether the goal was achieved given the
// latest cycle outcome and recent ledger history. A failed cycle never
// completes a goal. The verdict performs at most one status transition:
// completed marks the goal completed, blocked marks it failed, anything
// else only appends an evaluation note.
func (m *Manager) EvaluateCompletion(ctx context.Context, goal Goal, cycleSuccess bool, recent []ledger.Entry) EvaluationResult {
	if goal.ID == "" {
		return EvaluationResult{
			Status:     EvalFailed,
			Reason:     "no goal to evaluate",
			Confidence: 1.0,
		}
	}

	if !cycleSuccess {
		return EvaluationResult{
			Status:     EvalInProgress,
			Reason:     "evolution cycle failed; goal progress unchanged",
			Confidence: 0.8,
		}
	}

	response := ""
	if m.llm != nil {
		var err error
		response, err = m.llm.Ask(ctx, buildEvaluationPrompt(goal, recent))
		if err != nil {
			logging.GoalsWarn("Goal evaluation request failed: %v", err)
			response = ""
		}
	}

	result := ParseEvaluation(response)

	switch result.Status {
	case EvalCompleted:
		if err := m.store.UpdateStatus(goal.ID, StatusCompleted); err != nil {
			logging.GoalsWarn("Failed to complete goal %s: %v", goal.ID, err)
		} else {
			m.store.AddNote(goal.ID, "evaluation: "+result.Reason)
			logging.Goals("Goal [%s] completed: %s", goal.ID, truncate(result.Reason, 80))
		}
	case EvalBlocked:
		if err := m.store.UpdateStatus(goal.ID, StatusFailed); err != nil {
			logging.GoalsWarn("Failed to fail blocked goal %s: %v", goal.ID, err)
		} else {
			m.store.AddNote(goal.ID, "evaluation: "+result.Reason)
			logging.Goals("Goal [%s] blocked, marked failed: %s", goal.ID, truncate(result.Reason, 80))
		}
	default:
		m.store.AddNote(goal.ID, "evaluation: "+result.Reason)
	}

	return result
}

func buildEvaluationPrompt(goal Goal, recent []ledger.Entry) string {
	var sb strings.Builder
	sb.WriteString("Judge whether the following goal has been achieved.\n\n")
	sb.WriteString("## Goal\n")
	sb.WriteString(goal.Content)
	sb.WriteString("\n\n")
	sb.WriteString("## Recent Evolution History\n")
	sb.WriteString(formatHistory(recent))
	sb.WriteString("\n\n")
	sb.WriteString("Respond in this EXACT format:\n")
	sb.WriteString("STATUS: <completed|in_progress|blocked>\n")
	sb.WriteString("REASON: <one-line justification>\n")
	return sb.String()
}

func formatHistory(entries []ledger.Entry) string {
	if len(entries) == 0 {
		return "no recent evolution history"
	}
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s %s: %s (%s)",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Action, e.File, truncate(e.Description, 100), e.Status))
	}
	return sb.String()
}

var (
	evalStatusPattern = regexp.MustCompile(`(?i)STATUS:\s*(completed|in_progress|blocked|failed)`)
	evalReasonPattern = regexp.MustCompile(`(?i)REASON:\s*(.+)`)
)

// ParseEvaluation decodes a STATUS/REASON evaluation response. A missing
// STATUS field yields in_progress at low confidence; a missing REASON
// falls back to the first non-STATUS line, truncated to 200 characters.
func ParseEvaluation(response string) EvaluationResult {
	result := EvaluationResult{
		Status:     EvalInProgress,
		Confidence: 0.3,
	}
	if response == "" {
		result.Reason = "no evaluation response"
		return result
	}

	if match := evalStatusPattern.FindStringSubmatch(response); match != nil {
		result.Status = EvalStatus(strings.ToLower(match[1]))
		result.Confidence = 0.8
	}

	if match := evalReasonPattern.FindStringSubmatch(response); match != nil {
		result.Reason = strings.TrimSpace(match[1])
	}

	if result.Reason == "" {
		for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "STATUS") {
				result.Reason = truncate(line, 200)
				break
			}
		}
	}

	return result
}
