package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// backupTimeFormat is nanosecond-precise so rapid successive applies of
// the same file never clobber each other's backup. Lexicographic order
// of the resulting names is chronological order.
const backupTimeFormat = "20060102_150405.000000000"

// Applier writes proposed content into the working tree, backing up
// whatever it replaces so the orchestrator can roll a failed cycle
// back file by file.
type Applier struct {
	root      string
	backupDir string
	protector *Protector
}

// NewApplier creates an applier rooted at the workspace. Backups live
// under <root>/backups mirroring the workspace layout.
func NewApplier(root string, protector *Protector) *Applier {
	return &Applier{
		root:      root,
		backupDir: filepath.Join(root, "backups"),
		protector: protector,
	}
}

// IsProtected exposes the protect check so callers holding only the
// applier can pre-filter proposals.
func (a *Applier) IsProtected(filename string) bool {
	return a.protector != nil && a.protector.IsProtected(filename)
}

// Apply backs up the current content of filename (if any) and writes
// the proposed code in its place. Identical content is refused rather
// than rewritten so a no-op proposal never produces a backup or a
// ledger entry.
func (a *Applier) Apply(filename, code string) (bool, string) {
	if filename == "" || code == "" {
		return false, "filename or code missing"
	}
	if a.IsProtected(filename) {
		return false, fmt.Sprintf("%s is protected and may not be modified", filename)
	}

	target := filepath.Join(a.root, filename)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return false, fmt.Sprintf("failed to create directory for %s: %v", filename, err)
	}

	var existing []byte
	mode := os.FileMode(0644)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode()
		existing, err = os.ReadFile(target)
		if err != nil {
			logging.GuardWarn("failed to read existing %s: %v", filename, err)
			existing = nil
		}
	}

	if existing != nil && normalizeContent(string(existing)) == normalizeContent(code) {
		return false, fmt.Sprintf("%s has no substantive change, refusing a pointless rewrite", filename)
	}

	if existing != nil {
		backup := filepath.Join(a.backupDir, fmt.Sprintf("%s.%s.bak", filename, time.Now().Format(backupTimeFormat)))
		if err := os.MkdirAll(filepath.Dir(backup), 0755); err != nil {
			return false, fmt.Sprintf("failed to create backup directory for %s: %v", filename, err)
		}
		if err := os.WriteFile(backup, existing, mode); err != nil {
			return false, fmt.Sprintf("failed to back up %s: %v", filename, err)
		}
	}

	if err := os.WriteFile(target, []byte(code), mode); err != nil {
		return false, fmt.Sprintf("failed to write %s: %v", filename, err)
	}

	// Read back to confirm the write landed whole.
	written, err := os.ReadFile(target)
	if err != nil {
		return false, fmt.Sprintf("failed to verify %s after write: %v", filename, err)
	}
	if len(written) != len(code) {
		return false, fmt.Sprintf("write verification failed for %s: %d bytes on disk, %d proposed", filename, len(written), len(code))
	}

	logging.Guard("applied %s (%d bytes)", filename, len(code))
	return true, fmt.Sprintf("%s applied, previous version backed up (%d bytes)", filename, len(code))
}

// Rollback restores the most recent backup of filename. Returns false
// when no backup exists or the restore fails; the caller treats either
// as best-effort.
func (a *Applier) Rollback(filename string) bool {
	pattern := filepath.Join(a.backupDir, filename+".*.bak")
	backups, err := filepath.Glob(pattern)
	if err != nil || len(backups) == 0 {
		logging.GuardWarn("no backup found for %s", filename)
		return false
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	latest := backups[0]

	content, err := os.ReadFile(latest)
	if err != nil {
		logging.GuardWarn("failed to read backup %s: %v", latest, err)
		return false
	}

	target := filepath.Join(a.root, filename)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		logging.GuardWarn("failed to create directory for rollback of %s: %v", filename, err)
		return false
	}
	if err := os.WriteFile(target, content, 0644); err != nil {
		logging.GuardWarn("failed to restore %s from %s: %v", filename, latest, err)
		return false
	}

	logging.Guard("rolled %s back to %s", filename, filepath.Base(latest))
	return true
}

// normalizeContent strips trailing whitespace differences and CRLF so
// the no-change comparison matches how the generator round-trips files.
func normalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
