package correction

import (
	"fmt"
	"sync"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/auditor"
	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// MaxHistory bounds the recorded plan history. The history exists only
// to feed the escalation heuristic, so older plans can be discarded.
const MaxHistory = 100

// escalationWindow is how many recent plans ShouldEscalate inspects.
const escalationWindow = 10

// Manager maps audit findings to correction plans and tracks the
// proposals it has made. Construct one per supervisory loop; the
// history is process-local and intentionally not persisted.
type Manager struct {
	mu      sync.RWMutex
	history []Plan
}

// NewManager returns an empty policy engine.
func NewManager() *Manager {
	return &Manager{}
}

// =============================================================================
// POLICY TABLE
// =============================================================================

// ProposeCorrection maps a finding plus the current cognitive state to
// a plan. Every call returns a plan; findings that need no action get
// TypeNone with priority 0. Actionable plans are recorded in history,
// TypeNone proposals are not.
func (m *Manager) ProposeCorrection(finding Finding, state CognitiveState) Plan {
	var plan Plan
	switch finding.Severity {
	case auditor.SeverityCritical:
		plan = m.handleCritical(finding)
	case auditor.SeverityWarning:
		plan = m.handleWarning(finding, state)
	default:
		plan = Plan{
			Type:     TypeNone,
			Reason:   "System is operating within normal parameters.",
			Priority: 0,
		}
	}
	plan.SuggestedAt = time.Now()

	if plan.Type != TypeNone {
		m.record(plan)
		logging.Correction("proposed %s (priority %d): %s", plan.Type, plan.Priority, plan.Reason)
	}
	return plan
}

func (m *Manager) handleCritical(finding Finding) Plan {
	switch finding.ErrorType {
	case auditor.ErrorInfiniteLoop:
		return Plan{
			Type:     TypeResetContext,
			Reason:   "Infinite loop detected; resetting working context to break the cycle",
			Priority: 10,
			Params: map[string]interface{}{
				"scope":             "full_context",
				"preserve_identity": true,
			},
		}
	case auditor.ErrorRoadmapDeviation:
		return Plan{
			Type:     TypeSkipGoal,
			Reason:   "Critical roadmap deviation; abandoning the current goal",
			Priority: 8,
		}
	case auditor.ErrorMemoryCorruption:
		return Plan{
			Type:     TypeEmergencyDump,
			Reason:   "Memory corruption detected; dumping state for recovery",
			Priority: 10,
			Params: map[string]interface{}{
				"dump_location":   "emergency_dumps",
				"include_vectors": true,
			},
		}
	default:
		return Plan{
			Type:     TypeEmergencyDump,
			Reason:   fmt.Sprintf("Unhandled critical error: %s", finding.ErrorType),
			Priority: 10,
			Params: map[string]interface{}{
				"dump_location":   "emergency_dumps",
				"include_vectors": true,
			},
		}
	}
}

func (m *Manager) handleWarning(finding Finding, state CognitiveState) Plan {
	switch finding.ErrorType {
	case auditor.ErrorStagnation:
		if state.RecentFailures >= 5 {
			return Plan{
				Type:     TypeForceEvolution,
				Reason:   "Persistent stagnation with repeated failures; forcing an evolution attempt",
				Priority: 8,
				Params: map[string]interface{}{
					"bypass_validation":     false,
					"use_alternative_model": true,
					"stagnation_count":      state.RecentFailures,
				},
			}
		}
		return Plan{
			Type:     TypeAdjustStrategy,
			Reason:   "Growth has stalled; switching to a more aggressive strategy",
			Priority: 7,
			Params: map[string]interface{}{
				"target_mode":          "accelerated",
				"increase_temperature": true,
			},
		}
	case auditor.ErrorLowConfidence:
		return Plan{
			Type:     TypeDeepSleep,
			Reason:   fmt.Sprintf("Low confidence (%.2f); consolidating before further changes", state.ConfidenceScore),
			Priority: 5,
			Params: map[string]interface{}{
				"sleep_duration_seconds": 300,
				"consolidate_memories":   true,
				"confidence_threshold":   0.6,
			},
		}
	case auditor.ErrorRepetitivePattern:
		return Plan{
			Type:     TypeResetContext,
			Reason:   "Repetitive behavior pattern; clearing short-term memory",
			Priority: 6,
			Params: map[string]interface{}{
				"scope":             "short_term_memory",
				"preserve_identity": true,
			},
		}
	default:
		return Plan{
			Type:     TypeAdjustStrategy,
			Reason:   "Unclassified warning; proceeding cautiously",
			Priority: 4,
			Params: map[string]interface{}{
				"target_mode": "cautious",
				"error_type":  string(finding.ErrorType),
			},
		}
	}
}

// =============================================================================
// HISTORY & ESCALATION
// =============================================================================

func (m *Manager) record(plan Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, plan)
	if len(m.history) > MaxHistory {
		m.history = m.history[len(m.history)-MaxHistory:]
	}
}

// History returns a copy of the recorded plans, oldest first.
func (m *Manager) History() []Plan {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Plan, len(m.history))
	copy(out, m.history)
	return out
}

// Stats summarizes the recorded history.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		TotalCorrections: len(m.history),
		ByType:           make(map[CorrectionType]int),
	}
	if len(m.history) == 0 {
		return stats
	}

	prioritySum := 0
	for _, plan := range m.history {
		stats.ByType[plan.Type]++
		prioritySum += plan.Priority
	}
	stats.AvgPriority = float64(prioritySum) / float64(len(m.history))

	// First-recorded type wins ties so the summary is deterministic.
	best := 0
	for _, plan := range m.history {
		if stats.ByType[plan.Type] > best {
			best = stats.ByType[plan.Type]
			stats.MostCommon = plan.Type
		}
	}
	return stats
}

// ShouldEscalate reports whether the recent correction pattern calls
// for outside intervention: within the last ten recorded plans, three
// or more at priority 8 and above, or two or more emergency dumps.
func (m *Manager) ShouldEscalate() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.history) < 5 {
		return false
	}

	recent := m.history
	if len(recent) > escalationWindow {
		recent = recent[len(recent)-escalationWindow:]
	}

	highPriority := 0
	dumps := 0
	for _, plan := range recent {
		if plan.Priority >= 8 {
			highPriority++
		}
		if plan.Type == TypeEmergencyDump {
			dumps++
		}
	}
	if highPriority >= 3 {
		logging.CorrectionWarn("escalation: %d high-priority corrections in the last %d", highPriority, len(recent))
		return true
	}
	if dumps >= 2 {
		logging.CorrectionWarn("escalation: %d emergency dumps in the last %d", dumps, len(recent))
		return true
	}
	return false
}
