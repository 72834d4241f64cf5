package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// GeminiClient is the default Client, backed by the official genai SDK.
type GeminiClient struct {
	client          *genai.Client
	model           string
	timeout         time.Duration
	maxOutputTokens int32
}

// NewGeminiClient creates a Gemini-backed client. Model, timeout, and
// token limit fall back to sane defaults when unset.
func NewGeminiClient(apiKey, model string, timeout time.Duration, maxOutputTokens int) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY or generator.api_key)")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = 8192
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:          client,
		model:           model,
		timeout:         timeout,
		maxOutputTokens: int32(maxOutputTokens),
	}, nil
}

// SetModel switches the model used for subsequent completions.
func (c *GeminiClient) SetModel(model string) {
	c.model = model
}

// Model returns the current model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// Complete sends one system+user exchange and returns the joined text
// of the first candidate.
func (c *GeminiClient) Complete(ctx context.Context, system, user string) (string, error) {
	// Apply the client timeout only when the caller set no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	temp := float32(0.7)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: c.maxOutputTokens,
		Temperature:     &temp,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}

	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("gemini request failed (status %d): %s", apiErr.Code, strings.TrimSpace(apiErr.Message))
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("gemini returned an empty completion")
	}

	logging.GeneratorDebug("gemini %s: %d chars in %v", c.model, len(out), time.Since(start).Round(time.Millisecond))
	return out, nil
}
