package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// ClaudeClient is an Anthropic-backed Client. It usually serves the
// coder role, with Gemini planning; with provider "anthropic" it
// serves both.
type ClaudeClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewClaudeClient creates an Anthropic-backed client.
func NewClaudeClient(apiKey, model string, timeout time.Duration, maxTokens int) *ClaudeClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeClient{
		client:    &client,
		model:     model,
		maxTokens: int64(maxTokens),
		timeout:   timeout,
	}
}

// Complete sends one system+user exchange and returns the concatenated
// text blocks of the reply.
func (c *ClaudeClient) Complete(ctx context.Context, system, user string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("anthropic returned an empty completion")
	}
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		logging.GeneratorDebug("anthropic response hit the %d token ceiling", c.maxTokens)
	}

	logging.GeneratorDebug("claude %s: %d chars in %v", c.model, len(out), time.Since(start).Round(time.Millisecond))
	return out, nil
}
