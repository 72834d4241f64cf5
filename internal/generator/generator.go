// Package generator produces evolution proposals through a two-stage
// model pipeline: a planner designs the next change as a textual
// intent, and a coder renders that design into complete replacement
// files. Both stages retry with feedback before giving up.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/config"
	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

const (
	maxPlannerRetries = 3
	maxCoderRetries   = 5
)

// Client is the raw completion surface both pipeline stages run on.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// FileUpdate is one whole-file replacement proposed by the coder.
type FileUpdate struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
}

// Proposal is the parsed outcome of one generation round. NoEvolution
// means the coder judged the current step complete; Updates is empty
// in that case.
type Proposal struct {
	Intent      string       `json:"intent"`
	Updates     []FileUpdate `json:"updates"`
	NoEvolution bool         `json:"no_evolution,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// Generator orchestrates the planner/coder pipeline.
type Generator struct {
	planner Client
	coder   Client

	primaryModel string
	altModel     string

	// Optional hooks injected from the guard package. isProtected
	// drops updates targeting protected paths before the check runs;
	// check failures feed back into the coder retry prompt.
	isProtected func(filename string) bool
	check       func(code, filename string) (bool, string)
}

// Option configures a Generator.
type Option func(*Generator)

// WithProtectionFilter drops proposed updates whose target is
// protected instead of retrying over them.
func WithProtectionFilter(isProtected func(string) bool) Option {
	return func(g *Generator) { g.isProtected = isProtected }
}

// WithProposalCheck runs the given check over every parsed update; a
// failure aborts the attempt and its message is fed back to the coder
// on the next try.
func WithProposalCheck(check func(code, filename string) (bool, string)) Option {
	return func(g *Generator) { g.check = check }
}

// New builds a Generator from config. The default wiring is Gemini as
// the planner with Claude as the coder when an Anthropic key is
// configured; with provider "anthropic" Claude serves both roles.
func New(cfg *config.Config, opts ...Option) (*Generator, error) {
	gen := cfg.Generator
	timeout := cfg.GetGeneratorTimeout()

	var planner Client
	var primary string
	switch gen.Provider {
	case "anthropic":
		if gen.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but no API key configured")
		}
		planner = NewClaudeClient(gen.AnthropicAPIKey, gen.AnthropicModel, timeout, gen.MaxOutputTokens)
	default:
		gp, err := NewGeminiClient(gen.APIKey, gen.Model, timeout, gen.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to create planner client: %w", err)
		}
		planner = gp
		primary = gp.Model()
	}

	coder := planner
	if gen.AnthropicAPIKey != "" && gen.Provider != "anthropic" {
		coder = NewClaudeClient(gen.AnthropicAPIKey, gen.AnthropicModel, timeout, gen.MaxOutputTokens)
	}

	g := &Generator{
		planner:      planner,
		coder:        coder,
		primaryModel: primary,
		altModel:     gen.AlternativeModel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NewWithClients wires explicit clients, bypassing config. Used by the
// tests and by callers that manage their own clients.
func NewWithClients(planner, coder Client, opts ...Option) *Generator {
	g := &Generator{planner: planner, coder: coder}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// UseAlternativeModel switches the planner to the configured
// alternative model (or back). No-op when no alternative is configured
// or the planner is not a Gemini client.
func (g *Generator) UseAlternativeModel(on bool) {
	sw, ok := g.planner.(*GeminiClient)
	if !ok || g.altModel == "" {
		return
	}
	if on {
		sw.SetModel(g.altModel)
		logging.Generator("planner switched to alternative model %s", g.altModel)
	} else {
		sw.SetModel(g.primaryModel)
	}
}

// ProposeChanges runs the full pipeline: plan an intent over the
// snapshot, then render the design into whole-file updates.
func (g *Generator) ProposeChanges(ctx context.Context, snapshot, userIntent, hints string) (*Proposal, error) {
	design, intent, err := g.plan(ctx, snapshot, userIntent, hints)
	if err != nil {
		return nil, err
	}
	logging.Generator("planned intent: %s", truncate(intent, 120))
	return g.code(ctx, design, intent, snapshot)
}

// Ask sends a one-off prompt to the planner. The goal manager uses it
// for goal generation and completion evaluation.
func (g *Generator) Ask(ctx context.Context, prompt string) (string, error) {
	return g.planner.Complete(ctx, askSystemPrompt, prompt)
}

// plan asks the planner for a design, retrying with progressively
// simpler system prompts when the response is empty or unparsable.
func (g *Generator) plan(ctx context.Context, snapshot, userIntent, hints string) (string, string, error) {
	prompt := buildPlanPrompt(snapshot, hints, userIntent)

	var lastErr error
	for attempt := 1; attempt <= maxPlannerRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(1<<uint(attempt-2)) * time.Second)
		}

		system := plannerSystemPrompts[min(attempt-1, len(plannerSystemPrompts)-1)]
		design, err := g.planner.Complete(ctx, system, prompt)
		if err != nil {
			lastErr = err
			logging.GeneratorError("planner attempt %d/%d failed: %v", attempt, maxPlannerRetries, err)
			continue
		}
		if len(strings.TrimSpace(design)) < 50 {
			lastErr = fmt.Errorf("empty or too-short response (%d chars)", len(design))
			logging.GeneratorError("planner attempt %d/%d: %v", attempt, maxPlannerRetries, lastErr)
			continue
		}

		intent := ExtractIntent(design)
		if strings.Contains(intent, "empty response") || strings.Contains(intent, "parse failed") {
			lastErr = fmt.Errorf("intent extraction failed: %s", truncate(intent, 100))
			logging.GeneratorError("planner attempt %d/%d: %v", attempt, maxPlannerRetries, lastErr)
			continue
		}

		return design, intent, nil
	}

	return "", "", fmt.Errorf("planner failed after %d attempts: %w", maxPlannerRetries, lastErr)
}

// code asks the coder to render the design, retrying with the previous
// failure appended to the prompt. A NoEvolution verdict ends the loop
// immediately; it is an answer, not a failure.
func (g *Generator) code(ctx context.Context, design, intent, snapshot string) (*Proposal, error) {
	basePrompt := buildCodePrompt(design, snapshot)

	lastErr := ""
	for attempt := 1; attempt <= maxCoderRetries; attempt++ {
		prompt := basePrompt
		if lastErr != "" {
			prompt += "\n\n[PREVIOUS ATTEMPT FAILED]\n" + lastErr + "\nAvoid this failure and write the files again, complete and whole."
		}

		out, err := g.coder.Complete(ctx, coderSystemPrompt, prompt)
		if err != nil {
			lastErr = err.Error()
			logging.GeneratorError("coder attempt %d/%d failed: %v", attempt, maxCoderRetries, err)
			continue
		}

		proposal, err := ParseProposal(out, intent)
		if err != nil {
			lastErr = err.Error()
			logging.GeneratorError("coder attempt %d/%d unparsable: %v", attempt, maxCoderRetries, err)
			continue
		}
		if proposal.NoEvolution {
			logging.Generator("coder declined to evolve: %s", proposal.Reason)
			return proposal, nil
		}

		if g.isProtected != nil {
			kept := proposal.Updates[:0]
			for _, up := range proposal.Updates {
				if g.isProtected(up.Filename) {
					logging.Generator("dropping protected target %s from proposal", up.Filename)
					continue
				}
				kept = append(kept, up)
			}
			proposal.Updates = kept
			if len(proposal.Updates) == 0 {
				lastErr = "every proposed file is protected; target different files"
				continue
			}
		}

		if g.check != nil {
			if msg := g.checkUpdates(proposal.Updates); msg != "" {
				lastErr = msg
				logging.GeneratorError("coder attempt %d/%d rejected: %s", attempt, maxCoderRetries, msg)
				continue
			}
		}

		logging.Generator("proposal ready: %d file(s) for intent %q", len(proposal.Updates), truncate(intent, 80))
		return proposal, nil
	}

	return nil, fmt.Errorf("coder failed after %d attempts: %s", maxCoderRetries, lastErr)
}

func (g *Generator) checkUpdates(updates []FileUpdate) string {
	for _, up := range updates {
		if ok, msg := g.check(up.Code, up.Filename); !ok {
			return fmt.Sprintf("%s: %s", up.Filename, msg)
		}
	}
	return ""
}
