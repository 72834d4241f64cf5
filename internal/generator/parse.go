package generator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	noEvolutionMarker = "NO_EVOLUTION_NEEDED"

	// minCodeLen rejects fenced blocks that are too short to be a real
	// file; minFallbackLen is stricter because the last-resort path has
	// no filename marker vouching for the block.
	minCodeLen     = 10
	minFallbackLen = 50
)

var (
	// Intent markers in decreasing order of strictness. Models decorate
	// the SYSTEM_INTENT label in creative ways; the chain tolerates
	// bold markers and missing colons.
	intentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)SYSTEM_INTENT:\s*(.+?)(?:\n\n|\n\[|\n##|\n\*\*|\z)`),
		regexp.MustCompile(`(?is)SYSTEM_INTENT[:\s]+(.+?)(?:\n[A-Z\[]|\z)`),
		regexp.MustCompile(`(?is)\*\*SYSTEM_INTENT\*\*[:\s]*(.+?)(?:\n|\z)`),
	}
	intentNoiseRe = regexp.MustCompile("[#*`\\[\\]]")

	noEvolutionRe = regexp.MustCompile(noEvolutionMarker + `[:\s]*(.*)`)
	jsonFenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

	// FILE: section marker, tolerant of leading '#', '*', '[' and of
	// the marker appearing mid-document.
	fileMarkerRe = regexp.MustCompile(`(?i)(?:\n|^)[#*\[ ]*FILE[ :\]]*\s*`)
	fencedCodeRe = regexp.MustCompile("(?s)(?:```|''')(?:\\w+)?\\s*(.*?)\\s*(?:```|''')")

	// Alternative shapes: a filename embedded in the fence info string,
	// and a bare filename line directly above a fence.
	altFenceWithNameRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*:?\\s*([\\w./-]+\\.(?:go|py|md|json|ya?ml|txt|sh))\\n(.*?)```")
	altNameThenFenceRe = regexp.MustCompile("(?s)(?:^|\\n)([\\w./-]+\\.(?:go|py|md|json|ya?ml|txt|sh)):?[ \\t]*\\n+```[a-zA-Z]*\\s*(.*?)```")

	intentFilenameRe = regexp.MustCompile(`([\w/]+\.(?:go|py|md|json|ya?ml|txt))`)
)

// ExtractIntent distills a one-line intent from a planner response.
// It never fails: when no marker or usable line is found it returns a
// tagged placeholder the caller can recognize and retry on.
func ExtractIntent(response string) string {
	if strings.TrimSpace(response) == "" {
		return "System Evolution (empty response)"
	}

	for _, re := range intentPatterns {
		m := re.FindStringSubmatch(response)
		if m == nil {
			continue
		}
		intent := strings.Join(strings.Fields(m[1]), " ")
		if len(intent) > 20 {
			return truncate(intent, 500)
		}
	}

	// No marker: take the first substantial line that is not markdown
	// furniture.
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 30 {
			continue
		}
		switch line[0] {
		case '#', '*', '-', '`', '[':
			continue
		}
		return truncate(line, 500)
	}

	cleaned := strings.Join(strings.Fields(intentNoiseRe.ReplaceAllString(response, "")), " ")
	if len(cleaned) > 20 {
		return truncate(cleaned, 500)
	}
	return "System Evolution (parse failed)"
}

// ParseProposal turns raw coder output into a Proposal. The chain, in
// order: NO_EVOLUTION_NEEDED sentinel, JSON payload, FILE: sections,
// filename-bearing fences, and finally a single anonymous fence with
// the filename inferred from the intent.
func ParseProposal(output, intent string) (*Proposal, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, fmt.Errorf("empty generator output")
	}

	if strings.Contains(trimmed, noEvolutionMarker) {
		reason := "no reason given"
		if m := noEvolutionRe.FindStringSubmatch(trimmed); m != nil {
			if r := strings.TrimSpace(firstLine(m[1])); r != "" {
				reason = r
			}
		}
		return &Proposal{Intent: intent, NoEvolution: true, Reason: reason}, nil
	}

	if p := parseJSONProposal(trimmed, intent); p != nil {
		return p, nil
	}

	var updates []FileUpdate
	if sections := fileMarkerRe.Split(trimmed, -1); len(sections) > 1 {
		for _, section := range sections[1:] {
			if up := parseFileSection(section); up != nil {
				updates = append(updates, *up)
			}
		}
	}

	if len(updates) == 0 {
		updates = parseAlternativeShapes(trimmed)
	}

	if len(updates) == 0 {
		if m := fencedCodeRe.FindStringSubmatch(trimmed); m != nil {
			code := strings.TrimSpace(m[1])
			if len(code) >= minFallbackLen {
				name := filenameFromIntent(intent)
				if name == "" {
					return nil, fmt.Errorf("found a code block but no target filename in output or intent")
				}
				updates = append(updates, FileUpdate{Filename: name, Code: code})
			}
		}
	}

	if len(updates) == 0 {
		return nil, fmt.Errorf("no parsable file sections in generator output (first 500 chars): %s", truncate(trimmed, 500))
	}

	return &Proposal{Intent: intent, Updates: updates}, nil
}

// parseJSONProposal accepts the structured shape some models emit when
// asked for JSON, bare or inside a ```json fence. Returns nil when the
// output is not a usable JSON proposal.
func parseJSONProposal(output, intent string) *Proposal {
	candidate := output
	if m := jsonFenceRe.FindStringSubmatch(output); m != nil {
		candidate = m[1]
	}
	if !strings.HasPrefix(candidate, "{") {
		return nil
	}

	var p Proposal
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return nil
	}

	kept := p.Updates[:0]
	for _, up := range p.Updates {
		name := cleanFilename(up.Filename)
		if name == "" || len(up.Code) <= minCodeLen {
			continue
		}
		kept = append(kept, FileUpdate{Filename: name, Code: up.Code})
	}
	p.Updates = kept

	if len(p.Updates) == 0 && !p.NoEvolution {
		return nil
	}
	if p.Intent == "" {
		p.Intent = intent
	}
	return &p
}

// parseFileSection handles one chunk after a FILE: marker: filename on
// the first line, code in the first fence below it.
func parseFileSection(section string) *FileUpdate {
	head, _, _ := strings.Cut(section, "\n")
	name := cleanFilename(head)
	if name == "" {
		return nil
	}

	m := fencedCodeRe.FindStringSubmatch(section)
	if m == nil {
		return nil
	}
	code := strings.TrimSpace(m[1])
	if len(code) <= minCodeLen {
		return nil
	}

	return &FileUpdate{Filename: name, Code: code}
}

func parseAlternativeShapes(output string) []FileUpdate {
	var updates []FileUpdate
	for _, re := range []*regexp.Regexp{altFenceWithNameRe, altNameThenFenceRe} {
		for _, m := range re.FindAllStringSubmatch(output, -1) {
			name := cleanFilename(m[1])
			code := strings.TrimSpace(m[2])
			if name == "" || len(code) <= minCodeLen {
				continue
			}
			updates = append(updates, FileUpdate{Filename: name, Code: code})
		}
		if len(updates) > 0 {
			break
		}
	}
	return updates
}

// cleanFilename strips markdown decoration and leading ./ from a
// candidate filename. Empty return means unusable.
func cleanFilename(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.Trim(name, "*`\"'")
	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, "./")
	if name == "" || strings.ContainsAny(name, " \t") || !strings.Contains(name, ".") {
		return ""
	}
	return name
}

func filenameFromIntent(intent string) string {
	m := intentFilenameRe.FindStringSubmatch(intent)
	if m == nil {
		return ""
	}
	return cleanFilename(m[1])
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
