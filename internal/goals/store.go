package goals

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// MaxGoals caps the store size; when full, the oldest completed goal is
// evicted to make room, and insertion is refused when none exists.
const MaxGoals = 100

const stateVersion = "1.0"

// ErrStoreFull is returned when the store is at capacity and holds no
// completed goal to evict.
var ErrStoreFull = errors.New("goal store at capacity with no completed goal to evict")

// Store owns the goal collection and its JSON state file. Mutations are
// serialized; each one rewrites the state file wholesale.
type Store struct {
	path  string
	mu    sync.RWMutex
	goals []*Goal
}

// stateFile is the on-disk shape of the goal store.
type stateFile struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Goals     []*Goal   `json:"goals"`
}

// NewStore opens the goal store at statePath, loading existing goals if
// the file is present. A missing or unreadable file starts the store
// empty rather than failing: losing goal state degrades the agent, it
// does not stop it.
func NewStore(statePath string) *Store {
	s := &Store{path: statePath}
	s.load()
	return s
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if len(data) == 0 {
		return
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		logging.GoalsWarn("Failed to parse goal state file %s: %v (starting empty)", s.path, err)
		return
	}
	for _, g := range state.Goals {
		if g.ID == "" {
			continue
		}
		if !g.Status.Valid() {
			g.Status = StatusPending
		}
		g.Priority = clampPriority(g.Priority)
		s.goals = append(s.goals, g)
	}
	logging.Goals("Loaded %d goals from %s", len(s.goals), s.path)
}

// save rewrites the entire state file. Callers must hold the write lock.
func (s *Store) save() error {
	state := stateFile{
		Version:   stateVersion,
		UpdatedAt: time.Now(),
		Goals:     s.goals,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal goal state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write goal state: %w", err)
	}
	return nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Add registers a new pending goal and returns its ID. Priority is
// clamped to [1,10]. At capacity the oldest completed goal is evicted;
// with no completed goal to evict the insertion is refused.
func (s *Store) Add(content string, priority int, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.goals) >= MaxGoals {
		evicted := s.evictOldestCompleted()
		if evicted == "" {
			logging.GoalsWarn("Goal store full (%d goals, none completed); refusing %q", len(s.goals), truncate(content, 50))
			return "", ErrStoreFull
		}
		logging.Goals("Evicted oldest completed goal %s to make room", evicted)
	}

	goal := &Goal{
		ID:        uuid.New().String()[:8],
		Content:   content,
		Priority:  clampPriority(priority),
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}
	if goal.Metadata == nil {
		goal.Metadata = map[string]string{}
	}

	s.goals = append(s.goals, goal)
	if err := s.save(); err != nil {
		logging.GoalsWarn("Failed to persist goal state: %v", err)
	}

	logging.Goals("New goal [%s] P%d: %s", goal.ID, goal.Priority, truncate(content, 80))
	return goal.ID, nil
}

// evictOldestCompleted removes the completed goal with the earliest
// CreatedAt and returns its ID, or "" when none exists. Callers must
// hold the write lock.
func (s *Store) evictOldestCompleted() string {
	idx := -1
	for i, g := range s.goals {
		if g.Status != StatusCompleted {
			continue
		}
		if idx == -1 || g.CreatedAt.Before(s.goals[idx].CreatedAt) {
			idx = i
		}
	}
	if idx == -1 {
		return ""
	}
	id := s.goals[idx].ID
	s.goals = append(s.goals[:idx], s.goals[idx+1:]...)
	return id
}

// UpdateStatus transitions a goal to a new lifecycle status. Terminal
// goals (completed, failed) are never transitioned again.
func (s *Store) UpdateStatus(id string, status GoalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid goal status: %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	goal := s.find(id)
	if goal == nil {
		return fmt.Errorf("goal not found: %s", id)
	}
	if goal.Status.Terminal() && status != goal.Status {
		return fmt.Errorf("goal %s is %s and cannot transition to %s", id, goal.Status, status)
	}

	old := goal.Status
	goal.Status = status
	if err := s.save(); err != nil {
		logging.GoalsWarn("Failed to persist goal state: %v", err)
	}

	logging.Goals("Goal [%s] status: %s -> %s", id, old, status)
	return nil
}

// UpdatePriority changes a goal's priority, clamped to [1,10].
func (s *Store) UpdatePriority(id string, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal := s.find(id)
	if goal == nil {
		return fmt.Errorf("goal not found: %s", id)
	}

	goal.Priority = clampPriority(priority)
	if err := s.save(); err != nil {
		logging.GoalsWarn("Failed to persist goal state: %v", err)
	}
	return nil
}

// SetDeadline attaches a deadline to a goal.
func (s *Store) SetDeadline(id string, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal := s.find(id)
	if goal == nil {
		return fmt.Errorf("goal not found: %s", id)
	}

	goal.Deadline = &deadline
	if err := s.save(); err != nil {
		logging.GoalsWarn("Failed to persist goal state: %v", err)
	}
	return nil
}

// AddNote appends an evaluation note to the goal's metadata.
func (s *Store) AddNote(id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal := s.find(id)
	if goal == nil {
		return fmt.Errorf("goal not found: %s", id)
	}

	if prev := goal.Metadata["notes"]; prev != "" {
		goal.Metadata["notes"] = prev + "\n" + note
	} else {
		goal.Metadata["notes"] = note
	}
	if err := s.save(); err != nil {
		logging.GoalsWarn("Failed to persist goal state: %v", err)
	}
	return nil
}

// Remove deletes a goal outright.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.goals {
		if g.ID == id {
			s.goals = append(s.goals[:i], s.goals[i+1:]...)
			if err := s.save(); err != nil {
				logging.GoalsWarn("Failed to persist goal state: %v", err)
			}
			return nil
		}
	}
	return fmt.Errorf("goal not found: %s", id)
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a copy of the goal with the given ID.
func (s *Store) Get(id string) (Goal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goal := s.find(id)
	if goal == nil {
		return Goal{}, false
	}
	return copyGoal(goal), true
}

// ActiveGoals returns up to limit actionable goals sorted by priority
// descending, ties broken by earlier creation.
func (s *Store) ActiveGoals(limit int) []Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var actionable []*Goal
	for _, g := range s.goals {
		if g.Actionable() {
			actionable = append(actionable, g)
		}
	}

	sort.SliceStable(actionable, func(i, j int) bool {
		if actionable[i].Priority != actionable[j].Priority {
			return actionable[i].Priority > actionable[j].Priority
		}
		return actionable[i].CreatedAt.Before(actionable[j].CreatedAt)
	})

	if limit > 0 && len(actionable) > limit {
		actionable = actionable[:limit]
	}

	out := make([]Goal, len(actionable))
	for i, g := range actionable {
		out[i] = copyGoal(g)
	}
	return out
}

// ByStatus returns copies of all goals in the given status.
func (s *Store) ByStatus(status GoalStatus) []Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Goal
	for _, g := range s.goals {
		if g.Status == status {
			out = append(out, copyGoal(g))
		}
	}
	return out
}

// Count returns the total number of goals.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.goals)
}

// Summarize aggregates goal counts and the current top priorities.
func (s *Store) Summarize() Summary {
	s.mu.RLock()
	byStatus := make(map[GoalStatus]int)
	actionable := 0
	for _, g := range s.goals {
		byStatus[g.Status]++
		if g.Actionable() {
			actionable++
		}
	}
	total := len(s.goals)
	s.mu.RUnlock()

	return Summary{
		Total:         total,
		ByStatus:      byStatus,
		Actionable:    actionable,
		TopPriorities: s.ActiveGoals(3),
	}
}

// find returns the goal with the given ID, or nil. Callers must hold a lock.
func (s *Store) find(id string) *Goal {
	for _, g := range s.goals {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func copyGoal(g *Goal) Goal {
	out := *g
	if g.Metadata != nil {
		out.Metadata = make(map[string]string, len(g.Metadata))
		for k, v := range g.Metadata {
			out.Metadata[k] = v
		}
	}
	if g.Deadline != nil {
		d := *g.Deadline
		out.Deadline = &d
	}
	return out
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
