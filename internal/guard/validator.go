package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// maxFilenameLen blocks regex fragments and prose masquerading as
// filenames in generator output.
const maxFilenameLen = 100

// omissionPatterns catch generator output that elides code instead of
// writing the whole file. Applying such output would destroy the
// elided parts.
var omissionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*existing`),
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*rest`),
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*same`),
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*unchanged`),
	regexp.MustCompile(`(?i)//\s*keep\s+existing`),
	regexp.MustCompile(`(?i)//\s*unchanged\s+from`),
	regexp.MustCompile(`(?i)//\s*omitted`),
	regexp.MustCompile(`(?i)//\s*truncated`),
}

// requiredModules must survive any proposed go.mod rewrite. Losing one
// of these bricks the ledger, the generator, or the config loader.
var requiredModules = []string{
	"github.com/mattn/go-sqlite3",
	"github.com/google/uuid",
	"google.golang.org/genai",
	"gopkg.in/yaml.v3",
}

// Validator statically checks proposed file content before it is
// allowed anywhere near the working tree.
type Validator struct {
	protector *Protector
	pyParser  *sitter.Parser
}

// NewValidator returns a validator backed by the given protect
// registry.
func NewValidator(protector *Protector) *Validator {
	pyParser := sitter.NewParser()
	pyParser.SetLanguage(python.GetLanguage())
	return &Validator{protector: protector, pyParser: pyParser}
}

// Validate reports whether the proposed content for filename is safe to
// apply, with a human-readable reason when it is not. The checks run in
// a fixed order: filename sanity, generator-artifact detection,
// protection, then per-format syntax.
func (v *Validator) Validate(code, filename string) (bool, string) {
	if filename == "" {
		return false, "empty filename"
	}
	if strings.ContainsAny(filename, `<>|"?*`) || strings.Contains(filename, "\\") {
		return false, fmt.Sprintf("invalid filename %q: contains forbidden characters", filename)
	}
	if len(filename) > maxFilenameLen {
		return false, fmt.Sprintf("filename too long: %d characters (max %d)", len(filename), maxFilenameLen)
	}

	if msg := detectGeneratorArtifacts(code); msg != "" {
		return false, msg
	}

	if v.protector != nil && v.protector.IsProtected(filename) {
		return false, fmt.Sprintf("%s is protected and may not be modified", filename)
	}

	switch {
	case filename == "go.mod":
		return validateGoMod(code)
	case filename == "internal/ledger/store.go":
		// The ledger store must keep its core type or history is lost.
		if !strings.Contains(code, "type Store struct") {
			return false, "internal/ledger/store.go must retain the Store type"
		}
		return validateGoSource(code, filename)
	case strings.HasSuffix(filename, ".go"):
		return validateGoSource(code, filename)
	case strings.HasSuffix(filename, ".py"):
		return v.validatePython(code)
	case strings.HasSuffix(filename, ".json"):
		if !json.Valid([]byte(code)) {
			return false, fmt.Sprintf("%s: invalid JSON", filename)
		}
		return true, "JSON syntax OK"
	case strings.HasSuffix(filename, ".md"), strings.HasSuffix(filename, ".txt"),
		strings.HasSuffix(filename, ".toml"), strings.HasSuffix(filename, ".yaml"),
		strings.HasSuffix(filename, ".yml"), strings.HasSuffix(filename, ".sql"):
		return true, "text/config file, validation skipped"
	default:
		// Unknown formats are accepted as text so evolution is not
		// boxed into a fixed extension list.
		return true, fmt.Sprintf("unknown format (%s) accepted as text", filepath.Ext(filename))
	}
}

// detectGeneratorArtifacts scans for conflict markers, diff syntax, and
// code-omission comments. Proposals must be whole files; anything
// diff-shaped is rejected rather than converted. A lone "- " line is
// not a diff (markdown and YAML lists look like that); a diff needs
// both added and removed lines, or a hunk header.
func detectGeneratorArtifacts(code string) string {
	plusLines, minusLines, hunkLines := 0, 0, 0
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(line, "<<<<<<<") || strings.Contains(line, ">>>>>>>") || trimmed == "=======" {
			return "proposal contains git conflict markers; write the whole file instead"
		}
		switch {
		case strings.HasPrefix(trimmed, "+ "):
			plusLines++
		case strings.HasPrefix(trimmed, "- "):
			minusLines++
		case strings.HasPrefix(trimmed, "@@ "):
			hunkLines++
		}
	}
	if hunkLines > 0 || (plusLines > 0 && minusLines > 0) {
		return fmt.Sprintf("proposal looks like a diff (+%d/-%d/@%d lines); whole-file replacement required",
			plusLines, minusLines, hunkLines)
	}
	for _, pattern := range omissionPatterns {
		if pattern.MatchString(code) {
			return "proposal elides code (omission comment found); write the whole file"
		}
	}
	return ""
}

func validateGoSource(code, filename string) (bool, string) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filepath.Base(filename), code, parser.ParseComments)
	if err != nil {
		return false, fmt.Sprintf("Go syntax error: %v", err)
	}
	if file.Name == nil || file.Name.Name == "" {
		return false, "missing package declaration"
	}
	return true, "Go syntax OK"
}

// validatePython parses the proposal with tree-sitter and scans the
// tree for error and missing-token nodes.
func (v *Validator) validatePython(code string) (bool, string) {
	tree, err := v.pyParser.ParseCtx(context.Background(), nil, []byte(code))
	if err != nil {
		return false, fmt.Sprintf("Python parse failed: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return true, "Python syntax OK"
	}
	node := firstSyntaxError(root)
	return false, fmt.Sprintf("Python syntax error at line %d", int(node.StartPoint().Row)+1)
}

// firstSyntaxError returns the first ERROR or missing node in the tree.
// Only called on trees where HasError() is true, so it never comes back
// empty-handed.
func firstSyntaxError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstSyntaxError(n.Child(i)); found != nil {
			return found
		}
	}
	return n
}

func validateGoMod(code string) (bool, string) {
	if !strings.Contains(code, "module ") {
		return false, "go.mod is missing its module directive"
	}
	for _, mod := range requiredModules {
		if !strings.Contains(code, mod) {
			return false, fmt.Sprintf("required module %s missing from go.mod", mod)
		}
	}
	return true, "go.mod validation OK"
}
