// Package ledger records the outcome of every evolution attempt.
// The ledger is append-only: past entries are never mutated, and the
// cognitive auditor consumes trailing windows of it to detect loops,
// stagnation, and drift.
package ledger

import "time"

// =============================================================================
// ENTRY TYPES
// =============================================================================

// EntryStatus describes how an evolution attempt ended.
type EntryStatus string

const (
	StatusSuccess EntryStatus = "success"
	StatusFailed  EntryStatus = "failed"
)

// Entry is one immutable record of an evolution attempt.
type Entry struct {
	ID          int64       `json:"id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Type        string      `json:"type"` // always "evolution" for cycle entries
	Action      string      `json:"action"`
	File        string      `json:"file"`
	Description string      `json:"description"`
	Status      EntryStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
}

// GrowthSample is one snapshot of the cumulative growth score.
// The stagnation detector reads a trailing window of these.
type GrowthSample struct {
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
}
