package evolution

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/theRebelliousNerd/evoloop/internal/ledger"
	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

const (
	// maxFileChars caps a single file section; maxSnapshotChars caps the
	// whole snapshot and triggers the tiered compression pass.
	maxFileChars     = 15000
	maxSnapshotChars = 200000

	// Tiered per-file budgets applied under compression: files matching
	// the roadmap focus, other source files, everything else.
	focusFileChars  = 10000
	sourceFileChars = 4000
	otherFileChars  = 1000
)

// snapshotExts are the file types fed to the generator.
var snapshotExts = map[string]bool{
	".go":   true,
	".py":   true,
	".md":   true,
	".txt":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".mod":  true,
}

// skipDirs are never walked, on top of the blanket dot-directory rule
// that already covers .git and .evoloop. Backups and dependency trees
// would drown the generator in noise it must not touch anyway.
var skipDirs = map[string]bool{
	"backups":      true,
	"node_modules": true,
	"vendor":       true,
}

// Snapshotter renders the working tree into the text snapshot the
// planner reasons over.
type Snapshotter struct {
	root        string
	isProtected func(filename string) bool
}

// NewSnapshotter creates a snapshotter over root. isProtected marks
// files whose content is withheld from the generator; nil means no
// file is protected.
func NewSnapshotter(root string, isProtected func(string) bool) *Snapshotter {
	if isProtected == nil {
		isProtected = func(string) bool { return false }
	}
	return &Snapshotter{root: root, isProtected: isProtected}
}

type fileSection struct {
	path      string
	body      string
	protected bool
}

// Build walks the tree and renders the snapshot: a header, the roadmap
// focus, and one section per file. Protected files appear as stubs so
// the generator knows they exist but cannot read or target them.
func (s *Snapshotter) Build(focus string) (string, error) {
	sections, err := s.collect()
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	total := 0
	for _, sec := range sections {
		total += len(sec.body)
	}
	if total > maxSnapshotChars {
		logging.EvolutionDebug("snapshot %d chars over budget, compressing", total)
		compressSections(sections, focus)
	}

	var b strings.Builder
	b.WriteString("=== SYSTEM SNAPSHOT ===\n\n")
	if focus != "" {
		b.WriteString("[ROADMAP FOCUS]\n")
		b.WriteString(focus)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "[FILES: %d]\n\n", len(sections))

	for _, sec := range sections {
		if sec.protected {
			fmt.Fprintf(&b, "--- FILE: %s [PROTECTED] ---\n", sec.path)
			b.WriteString("(content withheld; proposals targeting this file are rejected)\n\n")
			continue
		}
		fmt.Fprintf(&b, "--- FILE: %s ---\n", sec.path)
		b.WriteString(sec.body)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func (s *Snapshotter) collect() ([]*fileSection, error) {
	var sections []*fileSection

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == s.root {
				return nil
			}
			if skipDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !snapshotExts[filepath.Ext(name)] {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.isProtected(rel) {
			sections = append(sections, &fileSection{path: rel, protected: true})
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			logging.EvolutionWarn("snapshot cannot read %s: %v", rel, err)
			return nil
		}
		body := string(content)
		if len(body) > maxFileChars {
			body = body[:maxFileChars] + "\n... (truncated)"
		}
		sections = append(sections, &fileSection{path: rel, body: body})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sections, func(i, j int) bool { return sections[i].path < sections[j].path })
	return sections, nil
}

// compressSections shrinks section bodies in place using tiered
// budgets: focus-related files keep the most, other source files less,
// docs and data the least.
func compressSections(sections []*fileSection, focus string) {
	keywords := focusKeywords(focus)
	for _, sec := range sections {
		if sec.protected {
			continue
		}
		budget := otherFileChars
		switch {
		case matchesAny(sec.path, keywords):
			budget = focusFileChars
		case strings.HasSuffix(sec.path, ".go") || strings.HasSuffix(sec.path, ".py"):
			budget = sourceFileChars
		}
		if len(sec.body) > budget {
			sec.body = sec.body[:budget] + "\n... (compressed)"
		}
	}
}

func focusKeywords(focus string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(focus)) {
		w = strings.Trim(w, ".,:;()[]")
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

func matchesAny(path string, keywords []string) bool {
	lower := strings.ToLower(path)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RecentSummary renders ledger entries as the history block fed back
// to the planner.
func RecentSummary(entries []ledger.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("### Recent Evolution History\n")
	for _, e := range entries {
		marker := "✅"
		if e.Status != ledger.StatusSuccess {
			marker = "❌"
		}
		fmt.Fprintf(&b, "- %s [%s] %s: %s...\n", marker, e.Type, e.File, truncate(e.Description, 50))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
