// Package auditor analyzes recent evolution behavior for cognitive
// failure patterns: file-modification loops, repeated errors, action
// pattern loops, roadmap drift, and growth stagnation. All detectors
// operate on read-only snapshots and produce no side effects.
package auditor

import "time"

// Severity grades an audit finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ErrorType classifies a finding for the correction policy engine.
// The detectors here produce the loop, deviation, and stagnation
// classes; memory_corruption, low_confidence, and push_mismatch come
// from callers with visibility into state integrity, confidence
// tracking, and the VCS gateway.
type ErrorType string

const (
	ErrorNone              ErrorType = "none"
	ErrorInfiniteLoop      ErrorType = "infinite_loop"
	ErrorRoadmapDeviation  ErrorType = "roadmap_deviation"
	ErrorMemoryCorruption  ErrorType = "memory_corruption"
	ErrorStagnation        ErrorType = "stagnation"
	ErrorLowConfidence     ErrorType = "low_confidence"
	ErrorRepetitivePattern ErrorType = "repetitive_pattern"
	ErrorPushMismatch      ErrorType = "repeated_push_mismatch"
)

// Result is a single detector's verdict. A nil *Result means the
// detector found nothing.
type Result struct {
	HasIssue       bool                   `json:"has_issue"`
	Severity       Severity               `json:"severity"`
	ErrorType      ErrorType              `json:"error_type"`
	Message        string                 `json:"message"`
	Recommendation string                 `json:"recommendation"`
	Details        map[string]interface{} `json:"details"`
}

// Health is the aggregate verdict over all detectors.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthCritical Health = "critical"
)

// Report aggregates one full audit pass. Findings carries the typed
// detector results so callers can feed them to the correction engine;
// Issues and Warnings hold the same findings as display strings.
type Report struct {
	Timestamp       time.Time `json:"timestamp"`
	OverallHealth   Health    `json:"overall_health"`
	Issues          []string  `json:"issues"`
	Warnings        []string  `json:"warnings"`
	Recommendations []string  `json:"recommendations"`
	AlignmentScore  float64   `json:"alignment_score"`
	Findings        []*Result `json:"findings,omitempty"`
}

// HasFindings reports whether any detector fired.
func (r *Report) HasFindings() bool {
	return len(r.Issues) > 0 || len(r.Warnings) > 0
}

// Config holds the detector thresholds.
type Config struct {
	// LoopThreshold is how many same-file modifications within the
	// window trigger the loop detector.
	LoopThreshold int
	// WindowSize is how many trailing ledger entries each detector
	// examines.
	WindowSize int
	// AlignmentThreshold is the minimum fraction of recent actions
	// that must relate to the current focus.
	AlignmentThreshold float64
	// StagnationWindow is how many growth samples must show zero
	// range before stagnation fires.
	StagnationWindow int
}

// DefaultConfig returns the standard audit thresholds.
func DefaultConfig() Config {
	return Config{
		LoopThreshold:      3,
		WindowSize:         5,
		AlignmentThreshold: 0.4,
		StagnationWindow:   5,
	}
}
