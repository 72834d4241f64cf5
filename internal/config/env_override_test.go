package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_Generator(t *testing.T) {
	t.Run("GOOGLE_API_KEY sets provider if empty", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "g-key")
		// Ensure others are unset
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "g-key", cfg.Generator.APIKey)
		assert.Equal(t, "gemini", cfg.Generator.Provider)
	})

	t.Run("GOOGLE_API_KEY does not override existing provider", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "g-key")
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{
			Generator: GeneratorConfig{Provider: "custom"},
		}
		cfg.applyEnvOverrides()

		assert.Equal(t, "g-key", cfg.Generator.APIKey)
		assert.Equal(t, "custom", cfg.Generator.Provider)
	})

	t.Run("GEMINI_API_KEY overrides provider", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{
			Generator: GeneratorConfig{Provider: "initial"},
		}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Generator.APIKey)
		assert.Equal(t, "gemini", cfg.Generator.Provider)
	})

	t.Run("GEMINI_API_KEY wins over GOOGLE_API_KEY", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "g-key")
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Generator.APIKey)
	})

	t.Run("ANTHROPIC_API_KEY fills the alternative slot", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.Generator.AnthropicAPIKey)
		// A configured gemini key keeps gemini as the primary provider
		assert.Equal(t, "gemini", cfg.Generator.Provider)
	})

	t.Run("ANTHROPIC_API_KEY alone selects anthropic", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.Generator.AnthropicAPIKey)
		assert.Equal(t, "anthropic", cfg.Generator.Provider)
	})
}

func TestEnvOverrides_Workspace(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("EVOLOOP_ROOT", "/elsewhere")
	t.Setenv("EVOLOOP_FOCUS", "step_7_meta_cognition")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	require.Equal(t, "/elsewhere", cfg.Workspace.Root)
	require.Equal(t, "step_7_meta_cognition", cfg.Evolution.Focus)
}
