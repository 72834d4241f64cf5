package generator

import "strings"

// plannerSystemPrompts get progressively simpler; retry attempt N uses
// prompt N so a model that ignores the long form still gets a usable
// instruction on the next pass.
var plannerSystemPrompts = []string{
	"You are the planning stage of an autonomous code evolution loop. " +
		"Study the system snapshot and design the single next evolution step: small, concrete, and not yet implemented. " +
		"Focus on logic and architecture, not code. " +
		"The first line of your reply MUST be 'SYSTEM_INTENT:' followed by one specific, actionable sentence.",

	"You are an evolution planner. Reply format: first line 'SYSTEM_INTENT: <one sentence describing the change>', " +
		"then a short design naming the exact files and functions to change.",

	"Evolution planner. Start your reply with 'SYSTEM_INTENT: <action>'. Be concise.",
}

// coderSystemPrompt renders a design into complete files. The diff
// prohibition is load-bearing: partial output corrupts files on apply,
// and the guard rejects anything that looks like a patch.
const coderSystemPrompt = `You are a file content generator for an autonomous evolution loop.

FORBIDDEN - DIFF OR PATCH FORMAT:
- Never start a line with '+ ' or '- ' (plus or minus followed by a space).
- Never use '@@ ... @@' hunk markers or '<<<<<<<', '=======', '>>>>>>>' conflict markers.
- Never show what to add or remove. Output the final complete file only.

RULES:
1. Output the COMPLETE file from the first line to the last.
2. Your output replaces the existing file entirely; anything you omit is deleted.
3. Any line starting with '+ ' or '- ' causes automatic rejection of the whole attempt.
4. Never elide code with placeholder comments such as '... existing code ...'.

OUTPUT FORMAT (repeat per file):
FILE: path/to/file.ext
` + "```" + `
<complete file content>
` + "```" + `

If the design is already fully implemented and nothing should change, reply with exactly one line:
NO_EVOLUTION_NEEDED: <reason>`

// askSystemPrompt backs Generator.Ask, the plain question channel used
// for goal generation and completion checks.
const askSystemPrompt = "You are the reflective inner voice of an autonomous evolution loop. " +
	"Answer the question directly and concisely. No markdown headings, no code unless asked."

// buildPlanPrompt assembles the planner's user prompt from the system
// snapshot, anti-stagnation hints, and an optional operator directive.
func buildPlanPrompt(snapshot, hints, userIntent string) string {
	var b strings.Builder

	b.WriteString("[CURRENT SYSTEM STATE AND CODE SNAPSHOT]\n")
	b.WriteString(snapshot)

	b.WriteString("\n\n[MISSION]\n")
	b.WriteString("1. Analyze the snapshot and find the smallest next evolution step that is not already implemented.\n")
	b.WriteString("2. Produce a concrete technical design: name the exact files and functions to add or change.\n")
	b.WriteString("3. Do not write code. Describe the logic, the structure, and the list of files to touch.\n")

	b.WriteString("\n[ANTI-STAGNATION RULES]\n")
	b.WriteString("- Before proposing anything, verify in the snapshot whether the type, function, or import already exists.\n")
	b.WriteString("- If the current step is already implemented, propose the next step instead of repeating it.\n")
	b.WriteString("- If recent history shows the same intent repeating, switch to a different file or feature.\n")

	b.WriteString("\n[GROUNDING]\n")
	b.WriteString("- If something is not visible in the snapshot above, it does not exist. ")
	b.WriteString("When you claim something is implemented, quote the snapshot line that proves it.\n")

	if hints != "" {
		b.WriteString("\n[RECENT ACTIVITY AND CONSTRAINTS]\n")
		b.WriteString(hints)
		b.WriteString("\n")
	}
	if userIntent != "" {
		b.WriteString("\n[OPERATOR DIRECTIVE]\n")
		b.WriteString(userIntent)
		b.WriteString("\n")
	}

	b.WriteString("\n[OUTPUT RULES]\n")
	b.WriteString("- The first line of your reply MUST be: SYSTEM_INTENT: <intent>\n")

	return b.String()
}

// buildCodePrompt assembles the coder's user prompt from the planner's
// design and the snapshot (reference only, so the coder can see the
// current content of the files it rewrites).
func buildCodePrompt(design, snapshot string) string {
	var b strings.Builder

	b.WriteString("Write the complete new content for every file named in the design below.\n")
	b.WriteString("One 'FILE: path' marker plus one fenced code block per file. Whole files only, never fragments or diffs.\n")
	b.WriteString("If the design is already fully implemented, reply 'NO_EVOLUTION_NEEDED: <reason>' instead.\n")

	b.WriteString("\n[DESIGN]\n")
	b.WriteString(design)

	b.WriteString("\n\n[SYSTEM CONTEXT - reference only]\n")
	b.WriteString(snapshot)

	return b.String()
}
