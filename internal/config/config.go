package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all evoloop configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Workspace layout
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Idea generator (LLM backends)
	Generator GeneratorConfig `yaml:"generator"`

	// Evolution cycle settings
	Evolution EvolutionConfig `yaml:"evolution"`

	// Cognitive audit cadence
	Audit AuditConfig `yaml:"audit"`

	// Goal lifecycle settings
	Goals GoalsConfig `yaml:"goals"`

	// Git gateway settings
	Git GitConfig `yaml:"git"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// WorkspaceConfig describes where evoloop keeps its state.
type WorkspaceConfig struct {
	Root        string `yaml:"root"`         // repository checkout the loop evolves
	StateDir    string `yaml:"state_dir"`    // relative to root, default .evoloop/state
	BackupDir   string `yaml:"backup_dir"`   // relative to root, default backups
	ProtectFile string `yaml:"protect_file"` // relative to root, default .evoprotect
}

// GeneratorConfig configures the idea generator backends.
type GeneratorConfig struct {
	Provider         string `yaml:"provider"` // gemini, anthropic
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	AlternativeModel string `yaml:"alternative_model"` // used when a correction forces evolution
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicModel   string `yaml:"anthropic_model"`
	Timeout          string `yaml:"timeout"`
	MaxOutputTokens  int    `yaml:"max_output_tokens"`
}

// EvolutionConfig configures the cycle orchestrator and daemon loop.
type EvolutionConfig struct {
	Interval    string `yaml:"interval"`     // pause between daemon cycles
	TestCommand string `yaml:"test_command"` // command the test gate runs
	TestTimeout string `yaml:"test_timeout"`
	Focus       string `yaml:"focus"` // current roadmap focus fed to auditor/goals
}

// AuditConfig configures when the full cognitive audit runs.
type AuditConfig struct {
	EveryCycles int `yaml:"every_cycles"` // run the full audit every N cycles
}

// GoalsConfig configures the goal store.
type GoalsConfig struct {
	StatePath    string `yaml:"state_path"` // relative to state dir
	SeedDefaults bool   `yaml:"seed_defaults"`
}

// GitConfig configures the version-control gateway.
type GitConfig struct {
	Remote         string `yaml:"remote"`
	Branch         string `yaml:"branch"`
	PushRetries    int    `yaml:"push_retries"`
	CommandTimeout string `yaml:"command_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "evoloop",
		Version: "0.3.0",

		Workspace: WorkspaceConfig{
			Root:        ".",
			StateDir:    ".evoloop/state",
			BackupDir:   "backups",
			ProtectFile: ".evoprotect",
		},

		Generator: GeneratorConfig{
			Provider:        "gemini",
			Model:           "gemini-2.0-flash",
			AnthropicModel:  "claude-sonnet-4-20250514",
			Timeout:         "120s",
			MaxOutputTokens: 8192,
		},

		Evolution: EvolutionConfig{
			Interval:    "5m",
			TestCommand: "go test ./...",
			TestTimeout: "10m",
			Focus:       "",
		},

		Audit: AuditConfig{
			EveryCycles: 3,
		},

		Goals: GoalsConfig{
			StatePath:    "goals.json",
			SeedDefaults: true,
		},

		Git: GitConfig{
			Remote:         "origin",
			Branch:         "main",
			PushRetries:    3,
			CommandTimeout: "30s",
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Generator API key from environment (check in priority order)
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Generator.APIKey = key
		if c.Generator.Provider == "" {
			c.Generator.Provider = "gemini"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generator.APIKey = key
		c.Generator.Provider = "gemini"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Generator.AnthropicAPIKey = key
		if c.Generator.APIKey == "" {
			c.Generator.Provider = "anthropic"
		}
	}

	// Workspace root from environment
	if root := os.Getenv("EVOLOOP_ROOT"); root != "" {
		c.Workspace.Root = root
	}

	// Roadmap focus from environment
	if focus := os.Getenv("EVOLOOP_FOCUS"); focus != "" {
		c.Evolution.Focus = focus
	}
}

// StateDir returns the absolute state directory path.
func (c *Config) StateDir() string {
	return filepath.Join(c.Workspace.Root, c.Workspace.StateDir)
}

// BackupDir returns the absolute backup directory path.
func (c *Config) BackupDir() string {
	return filepath.Join(c.Workspace.Root, c.Workspace.BackupDir)
}

// ProtectFilePath returns the absolute protected-paths file path.
func (c *Config) ProtectFilePath() string {
	return filepath.Join(c.Workspace.Root, c.Workspace.ProtectFile)
}

// GoalStatePath returns the absolute goal store path.
func (c *Config) GoalStatePath() string {
	return filepath.Join(c.StateDir(), c.Goals.StatePath)
}

// GetGeneratorTimeout returns the generator timeout as a duration.
func (c *Config) GetGeneratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generator.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetCycleInterval returns the daemon cycle interval as a duration.
func (c *Config) GetCycleInterval() time.Duration {
	d, err := time.ParseDuration(c.Evolution.Interval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetTestTimeout returns the test gate timeout as a duration.
func (c *Config) GetTestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Evolution.TestTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetGitTimeout returns the per-git-command timeout as a duration.
func (c *Config) GetGitTimeout() time.Duration {
	d, err := time.ParseDuration(c.Git.CommandTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
