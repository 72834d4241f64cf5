// Package goals manages the lifecycle of the agent's goals: creation,
// prioritization, persistence, and completion evaluation. The store owns
// the goal collection exclusively; every mutation goes through an explicit
// operation and rewrites the JSON state file wholesale.
package goals

import "time"

// =============================================================================
// GOAL TYPES
// =============================================================================

// GoalStatus represents where a goal sits in its lifecycle.
type GoalStatus string

const (
	StatusPending   GoalStatus = "pending"
	StatusActive    GoalStatus = "active"
	StatusCompleted GoalStatus = "completed"
	StatusFailed    GoalStatus = "failed"
	StatusDeferred  GoalStatus = "deferred"
)

// Valid reports whether s is a known lifecycle status.
func (s GoalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed, StatusDeferred:
		return true
	}
	return false
}

// Terminal reports whether s can never be left again.
func (s GoalStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Goal is a single unit of intent the agent works toward.
type Goal struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Priority  int               `json:"priority"`
	Status    GoalStatus        `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Deadline  *time.Time        `json:"deadline,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Actionable reports whether the goal can still receive work.
func (g *Goal) Actionable() bool {
	return g.Status == StatusPending || g.Status == StatusActive
}

// =============================================================================
// EVALUATION TYPES
// =============================================================================

// EvalStatus is the verdict of a completion evaluation.
type EvalStatus string

const (
	EvalCompleted  EvalStatus = "completed"
	EvalInProgress EvalStatus = "in_progress"
	EvalBlocked    EvalStatus = "blocked"
	EvalFailed     EvalStatus = "failed"
)

// EvaluationResult is the transient outcome of one completion check.
// It drives at most one goal status transition.
type EvaluationResult struct {
	Status     EvalStatus `json:"status"`
	Reason     string     `json:"reason"`
	Confidence float64    `json:"confidence"`
}

// Summary aggregates goal counts for status reports.
type Summary struct {
	Total         int                `json:"total"`
	ByStatus      map[GoalStatus]int `json:"by_status"`
	Actionable    int                `json:"actionable"`
	TopPriorities []Goal             `json:"top_priorities"`
}
