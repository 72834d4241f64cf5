package generator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// mockClient replays scripted responses and records every call.
type mockClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	systems   []string
	prompts   []string
}

func (m *mockClient) Complete(_ context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.systems)
	m.systems = append(m.systems, system)
	m.prompts = append(m.prompts, user)

	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", fmt.Errorf("mock exhausted after %d calls", i)
}

func (m *mockClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.systems)
}

const goodDesign = "SYSTEM_INTENT: Add a Demo function to internal/demo/demo.go returning a constant.\n\n" +
	"Create internal/demo/demo.go with a single exported function Demo() int."

const goodCode = "FILE: internal/demo/demo.go\n```go\npackage demo\n\nfunc Demo() int {\n\treturn 42\n}\n```\n"

func TestProposeChangesHappyPath(t *testing.T) {
	t.Parallel()

	planner := &mockClient{responses: []string{goodDesign}}
	coder := &mockClient{responses: []string{goodCode}}
	g := NewWithClients(planner, coder)

	p, err := g.ProposeChanges(context.Background(), "snapshot body", "", "recent hints")
	require.NoError(t, err)
	require.Equal(t, "Add a Demo function to internal/demo/demo.go returning a constant.", p.Intent)
	require.Len(t, p.Updates, 1)
	require.Equal(t, "internal/demo/demo.go", p.Updates[0].Filename)

	require.Equal(t, 1, planner.calls())
	require.Equal(t, 1, coder.calls())

	// Planner sees snapshot and hints, coder sees the design and the
	// snapshot for reference.
	require.Contains(t, planner.prompts[0], "snapshot body")
	require.Contains(t, planner.prompts[0], "recent hints")
	require.Equal(t, plannerSystemPrompts[0], planner.systems[0])
	require.Contains(t, coder.prompts[0], goodDesign)
	require.Contains(t, coder.prompts[0], "snapshot body")
	require.Equal(t, coderSystemPrompt, coder.systems[0])
}

func TestProposeChangesForwardsDirective(t *testing.T) {
	t.Parallel()

	planner := &mockClient{responses: []string{goodDesign}}
	coder := &mockClient{responses: []string{goodCode}}
	g := NewWithClients(planner, coder)

	_, err := g.ProposeChanges(context.Background(), "snap", "Focus on the parser package only.", "")
	require.NoError(t, err)
	require.Contains(t, planner.prompts[0], "[OPERATOR DIRECTIVE]")
	require.Contains(t, planner.prompts[0], "Focus on the parser package only.")
}

func TestPlannerRetriesOnShortResponse(t *testing.T) {
	t.Parallel()

	planner := &mockClient{responses: []string{"too short", goodDesign}}
	coder := &mockClient{responses: []string{goodCode}}
	g := NewWithClients(planner, coder)

	p, err := g.ProposeChanges(context.Background(), "snap", "", "")
	require.NoError(t, err)
	require.Len(t, p.Updates, 1)
	require.Equal(t, 2, planner.calls())
	// The retry drops to the simpler system prompt.
	require.Equal(t, plannerSystemPrompts[1], planner.systems[1])
}

func TestPlannerExhaustionFails(t *testing.T) {
	t.Parallel()

	planner := &mockClient{responses: []string{"short", "short", "short"}}
	g := NewWithClients(planner, &mockClient{})

	_, err := g.ProposeChanges(context.Background(), "snap", "", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "planner failed after 3 attempts")
	require.Equal(t, 3, planner.calls())
}

func TestCoderRetryFeedsBackFailure(t *testing.T) {
	t.Parallel()

	planner := &mockClient{responses: []string{goodDesign}}
	coder := &mockClient{responses: []string{"no code here, just words about the plan", goodCode}}
	g := NewWithClients(planner, coder)

	p, err := g.ProposeChanges(context.Background(), "snap", "", "")
	require.NoError(t, err)
	require.Len(t, p.Updates, 1)
	require.Equal(t, 2, coder.calls())
	require.Contains(t, coder.prompts[1], "[PREVIOUS ATTEMPT FAILED]")
	require.Contains(t, coder.prompts[1], "no parsable file sections")
}

func TestCoderNoEvolutionShortCircuits(t *testing.T) {
	t.Parallel()

	planner := &mockClient{responses: []string{goodDesign}}
	coder := &mockClient{responses: []string{"NO_EVOLUTION_NEEDED: the Demo function already exists"}}
	g := NewWithClients(planner, coder)

	p, err := g.ProposeChanges(context.Background(), "snap", "", "")
	require.NoError(t, err)
	require.True(t, p.NoEvolution)
	require.Equal(t, "the Demo function already exists", p.Reason)
	require.Equal(t, 1, coder.calls())
}

func TestProtectionFilterDropsTargets(t *testing.T) {
	t.Parallel()

	multi := goodCode +
		"\nFILE: main.go\n```go\npackage main\n\nfunc main() { println(\"x\") }\n```\n"
	planner := &mockClient{responses: []string{goodDesign}}
	coder := &mockClient{responses: []string{multi}}
	g := NewWithClients(planner, coder, WithProtectionFilter(func(name string) bool {
		return name == "main.go"
	}))

	p, err := g.ProposeChanges(context.Background(), "snap", "", "")
	require.NoError(t, err)
	require.Len(t, p.Updates, 1)
	require.Equal(t, "internal/demo/demo.go", p.Updates[0].Filename)
}

func TestAllProtectedRetriesThenFails(t *testing.T) {
	t.Parallel()

	onlyProtected := "FILE: main.go\n```go\npackage main\n\nfunc main() { println(\"x\") }\n```\n"
	planner := &mockClient{responses: []string{goodDesign}}
	coder := &mockClient{responses: []string{onlyProtected, onlyProtected, onlyProtected, onlyProtected, onlyProtected}}
	g := NewWithClients(planner, coder, WithProtectionFilter(func(string) bool { return true }))

	_, err := g.ProposeChanges(context.Background(), "snap", "", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "protected")
	require.Equal(t, maxCoderRetries, coder.calls())
}

func TestProposalCheckFeedsBackRejection(t *testing.T) {
	t.Parallel()

	badCode := "FILE: internal/demo/demo.go\n```go\n+ package demo\n- package olddemo\n\nfunc Demo() int { return 1 }\n```\n"
	planner := &mockClient{responses: []string{goodDesign}}
	coder := &mockClient{responses: []string{badCode, goodCode}}
	g := NewWithClients(planner, coder, WithProposalCheck(func(code, _ string) (bool, string) {
		if strings.Contains(code, "+ package") {
			return false, "looks like a diff, not a complete file"
		}
		return true, "ok"
	}))

	p, err := g.ProposeChanges(context.Background(), "snap", "", "")
	require.NoError(t, err)
	require.Len(t, p.Updates, 1)
	require.Equal(t, 2, coder.calls())
	require.Contains(t, coder.prompts[1], "looks like a diff")
}

func TestAskUsesPlanner(t *testing.T) {
	t.Parallel()

	planner := &mockClient{responses: []string{"A clear, direct answer."}}
	g := NewWithClients(planner, &mockClient{})

	out, err := g.Ask(context.Background(), "What should the system focus on next?")
	require.NoError(t, err)
	require.Equal(t, "A clear, direct answer.", out)
	require.Equal(t, askSystemPrompt, planner.systems[0])
}

func TestUseAlternativeModelIgnoresNonGeminiPlanner(t *testing.T) {
	t.Parallel()

	g := NewWithClients(&mockClient{}, &mockClient{})
	// Mock planner is not a Gemini client; the switch must be a no-op.
	g.UseAlternativeModel(true)
	g.UseAlternativeModel(false)
}
