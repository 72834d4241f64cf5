package auditor

import (
	"fmt"
	"strings"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/ledger"
	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// Auditor runs the cognitive audit detectors. It carries no state
// between calls; every audit works on the snapshots it is handed.
type Auditor struct {
	config Config
}

// New creates an auditor with the given thresholds.
func New(config Config) *Auditor {
	return &Auditor{config: config}
}

// =============================================================================
// REASONING LOOP DETECTION
// =============================================================================

// AuditReasoningLoop checks the trailing window of history for circular
// behavior. The three loop detectors run in fixed order (file loop,
// error loop, action pattern loop) and the first that fires wins.
func (a *Auditor) AuditReasoningLoop(history []ledger.Entry) *Result {
	if len(history) < 2 {
		return nil
	}

	recent := tailEntries(history, a.config.WindowSize)

	if result := a.detectFileLoop(recent); result != nil {
		return result
	}
	if result := a.detectErrorLoop(recent); result != nil {
		return result
	}
	return a.detectActionPatternLoop(recent)
}

// detectFileLoop flags the same file being modified repeatedly. The
// streak of trailing modifications decides severity: three or more
// consecutive hits on the same file is critical.
func (a *Auditor) detectFileLoop(recent []ledger.Entry) *Result {
	var files []string
	for _, e := range recent {
		if e.File != "" {
			files = append(files, e.File)
		}
	}
	if len(files) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, f := range files {
		counts[f]++
	}
	// First-seen wins ties, so iterate the slice rather than the map
	topFile, topCount := "", 0
	for _, f := range files {
		if counts[f] > topCount {
			topFile, topCount = f, counts[f]
		}
	}

	if topCount < a.config.LoopThreshold || files[len(files)-1] != topFile {
		return nil
	}

	consecutive := 0
	for i := len(files) - 1; i >= 0 && files[i] == topFile; i-- {
		consecutive++
	}

	severity, errorType := SeverityWarning, ErrorRepetitivePattern
	if consecutive >= 3 {
		severity, errorType = SeverityCritical, ErrorInfiniteLoop
	}

	return &Result{
		HasIssue:  true,
		Severity:  severity,
		ErrorType: errorType,
		Message: fmt.Sprintf("Loop detected: file %q modified %d times in the last %d entries",
			topFile, topCount, a.config.WindowSize),
		Recommendation: "Change approach: modify a different file first, or re-analyze the root cause of the problem.",
		Details: map[string]interface{}{
			"file":               topFile,
			"modification_count": topCount,
			"consecutive_count":  consecutive,
			"window_size":        a.config.WindowSize,
			"all_files":          files,
		},
	}
}

// detectErrorLoop flags identical failure messages repeating. Two
// identical trailing errors is a warning; a streak of three is critical.
func (a *Auditor) detectErrorLoop(recent []ledger.Entry) *Result {
	var errors []string
	for _, e := range recent {
		if e.Status == ledger.StatusFailed && e.Error != "" {
			errors = append(errors, e.Error)
		}
	}
	if len(errors) < 2 {
		return nil
	}

	last := errors[len(errors)-1]
	if errors[len(errors)-2] != last {
		return nil
	}

	consecutive := 0
	for i := len(errors) - 1; i >= 0 && errors[i] == last; i-- {
		consecutive++
	}

	severity, errorType := SeverityWarning, ErrorRepetitivePattern
	if consecutive >= 3 {
		severity, errorType = SeverityCritical, ErrorInfiniteLoop
	}

	return &Result{
		HasIssue:  true,
		Severity:  severity,
		ErrorType: errorType,
		Message: fmt.Sprintf("Persistent error: the same failure repeated %d times (%q)",
			consecutive, truncate(last, 80)),
		Recommendation: "The current approach is not resolving this error. Re-analyze its root cause and try a different solution.",
		Details: map[string]interface{}{
			"error_message":          last,
			"consecutive_count":      consecutive,
			"total_errors_in_window": len(errors),
		},
	}
}

// detectActionPatternLoop flags the same (action, file) pair recurring.
func (a *Auditor) detectActionPatternLoop(recent []ledger.Entry) *Result {
	if len(recent) < 3 {
		return nil
	}

	type pair struct{ action, file string }
	patterns := make([]pair, len(recent))
	for i, e := range recent {
		patterns[i] = pair{e.Action, e.File}
	}

	counts := make(map[pair]int)
	for _, p := range patterns {
		counts[p]++
	}
	var topPair pair
	topCount := 0
	for _, p := range patterns {
		if counts[p] > topCount {
			topPair, topCount = p, counts[p]
		}
	}

	if topCount < 3 || patterns[len(patterns)-1] != topPair {
		return nil
	}

	return &Result{
		HasIssue:  true,
		Severity:  SeverityWarning,
		ErrorType: ErrorRepetitivePattern,
		Message: fmt.Sprintf("Action pattern loop: %q on %q repeated %d times",
			topPair.action, topPair.file, topCount),
		Recommendation: "The same action keeps repeating. Change strategy or switch to a different goal.",
		Details: map[string]interface{}{
			"action":       topPair.action,
			"file":         topPair.file,
			"repeat_count": topCount,
		},
	}
}

// =============================================================================
// ROADMAP ALIGNMENT
// =============================================================================

// keywordCategories maps focus substrings to the keywords that count as
// related work. Ordered so keyword extraction is deterministic.
var keywordCategories = []struct {
	category string
	words    []string
}{
	{"vector", []string{"vector", "lance", "memory", "embedding", "semantic"}},
	{"meta", []string{"meta", "monitor", "evaluator", "strategy", "audit", "cognition"}},
	{"intuition", []string{"intuition", "pattern", "system 1", "fast", "recognition"}},
	{"consciousness", []string{"consciousness", "awareness", "stream", "monologue"}},
	{"intention", []string{"intention", "goal", "purpose", "objective"}},
	{"memory", []string{"memory", "consolidation", "hippocampus", "recall"}},
	{"temporal", []string{"temporal", "time", "continuity", "self"}},
}

// AuditRoadmapAlignment scores how much of the recent work relates to
// the current roadmap focus. Returns the score and a warning when it
// falls below the threshold. Missing focus or empty history yields a
// neutral 0.5 with no finding; a focus with no known keywords passes
// vacuously at 1.0.
func (a *Auditor) AuditRoadmapAlignment(currentFocus string, recentActions []ledger.Entry) (float64, *Result) {
	if currentFocus == "" || len(recentActions) == 0 {
		return 0.5, nil
	}

	keywords := extractRoadmapKeywords(currentFocus)
	if len(keywords) == 0 {
		return 1.0, nil
	}

	window := tailEntries(recentActions, a.config.WindowSize)
	matched := 0
	var matchedFiles, unmatchedFiles []string
	for _, action := range window {
		desc := strings.ToLower(action.Description)
		file := strings.ToLower(action.File)

		hit := false
		for _, k := range keywords {
			if strings.Contains(desc, k) || strings.Contains(file, k) {
				hit = true
				break
			}
		}
		if hit {
			matched++
			matchedFiles = append(matchedFiles, action.File)
		} else {
			unmatchedFiles = append(unmatchedFiles, action.File)
		}
	}

	score := float64(matched) / float64(len(window))
	if score >= a.config.AlignmentThreshold {
		return score, nil
	}

	return score, &Result{
		HasIssue:  true,
		Severity:  SeverityWarning,
		ErrorType: ErrorRoadmapDeviation,
		Message: fmt.Sprintf("Roadmap misalignment: only %.0f%% of recent actions relate to the current focus (%s)",
			score*100, currentFocus),
		Recommendation: fmt.Sprintf("Concentrate on the current roadmap focus (%s). Related keywords: %s",
			currentFocus, strings.Join(head(keywords, 5), ", ")),
		Details: map[string]interface{}{
			"alignment_score": score,
			"current_focus":   currentFocus,
			"keywords":        keywords,
			"matched_files":   matchedFiles,
			"unmatched_files": unmatchedFiles,
		},
	}
}

// extractRoadmapKeywords derives the related-work keyword set for a
// focus string. Every category whose name appears in the focus
// contributes its keywords.
func extractRoadmapKeywords(currentFocus string) []string {
	focus := strings.ToLower(currentFocus)

	var keywords []string
	for _, cat := range keywordCategories {
		if strings.Contains(focus, cat.category) {
			keywords = append(keywords, cat.words...)
		}
	}
	return keywords
}

// =============================================================================
// STAGNATION DETECTION
// =============================================================================

// DetectStagnation flags a growth score that has not moved across the
// stagnation window. Fewer samples than the window is not stagnation,
// it is just a short history.
func (a *Auditor) DetectStagnation(scores []int) *Result {
	if len(scores) < a.config.StagnationWindow {
		return nil
	}

	window := scores
	if len(window) > a.config.StagnationWindow {
		window = window[len(window)-a.config.StagnationWindow:]
	}
	minScore, maxScore := window[0], window[0]
	for _, s := range window {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore != minScore {
		return nil
	}

	return &Result{
		HasIssue:  true,
		Severity:  SeverityWarning,
		ErrorType: ErrorStagnation,
		Message: fmt.Sprintf("Stagnation detected: growth score unchanged at %d for the last %d samples",
			window[len(window)-1], a.config.StagnationWindow),
		Recommendation: "Growth has stalled. Set a more ambitious goal or shift the evolution direction to a different area.",
		Details: map[string]interface{}{
			"current_score": window[len(window)-1],
			"score_history": window,
			"window_size":   a.config.StagnationWindow,
		},
	}
}

// =============================================================================
// FULL AUDIT
// =============================================================================

// RunFullAudit executes every detector and aggregates the findings.
// Health starts healthy; any critical finding makes it critical, any
// warning degrades it. Detectors are independent: a finding in one
// never short-circuits the others.
func (a *Auditor) RunFullAudit(history []ledger.Entry, growthScores []int, currentFocus string) *Report {
	report := &Report{
		Timestamp:      time.Now(),
		OverallHealth:  HealthHealthy,
		AlignmentScore: 1.0,
	}

	if loop := a.AuditReasoningLoop(history); loop != nil {
		if loop.Severity == SeverityCritical {
			report.Issues = append(report.Issues, loop.Message)
			report.OverallHealth = HealthCritical
		} else {
			report.Warnings = append(report.Warnings, loop.Message)
			if report.OverallHealth == HealthHealthy {
				report.OverallHealth = HealthDegraded
			}
		}
		report.Recommendations = append(report.Recommendations, loop.Recommendation)
		report.Findings = append(report.Findings, loop)
	}

	score, alignment := a.AuditRoadmapAlignment(currentFocus, history)
	report.AlignmentScore = score
	if alignment != nil {
		report.Warnings = append(report.Warnings, alignment.Message)
		report.Recommendations = append(report.Recommendations, alignment.Recommendation)
		if report.OverallHealth == HealthHealthy {
			report.OverallHealth = HealthDegraded
		}
		report.Findings = append(report.Findings, alignment)
	}

	if stagnation := a.DetectStagnation(growthScores); stagnation != nil {
		report.Warnings = append(report.Warnings, stagnation.Message)
		report.Recommendations = append(report.Recommendations, stagnation.Recommendation)
		if report.OverallHealth == HealthHealthy {
			report.OverallHealth = HealthDegraded
		}
		report.Findings = append(report.Findings, stagnation)
	}

	logging.Auditor("Full audit: health=%s issues=%d warnings=%d alignment=%.2f",
		report.OverallHealth, len(report.Issues), len(report.Warnings), report.AlignmentScore)

	return report
}

// =============================================================================
// HELPERS
// =============================================================================

func tailEntries(entries []ledger.Entry, n int) []ledger.Entry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
