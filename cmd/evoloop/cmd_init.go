package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/theRebelliousNerd/evoloop/internal/config"
	"github.com/theRebelliousNerd/evoloop/internal/goals"

	"github.com/spf13/cobra"
)

// starterProtectFile seeds .evoprotect. The core set (loop entrypoint,
// git gateway, config, and the protect file itself) is compiled in and
// needs no listing here.
const starterProtectFile = `# Paths the evolution loop must never rewrite, one exact path per
# line, relative to the workspace root. Inline # comments are allowed.
#
# The core set (cmd/evoloop/main.go, internal/vcs/, .evoloop/config.yaml
# and this file) is always protected and cannot be unlisted.

go.sum
`

// initCmd initializes evoloop in a workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize evoloop in the current workspace",
	Long: `Prepares a repository for supervised self-evolution.

This command:
  1. Creates the .evoloop/ directory and writes a default config.yaml
  2. Writes a starter .evoprotect protected-paths file
  3. Creates the state directory for the ledger and goal store
  4. Seeds the goal backlog with starter goals

Run it once per repository, then edit .evoloop/config.yaml to set the
cycle interval, roadmap focus, and test command.`,
	RunE: initWorkspace,
}

func initWorkspace(cmd *cobra.Command, args []string) error {
	root := resolveWorkspace()
	configPath := filepath.Join(root, ".evoloop", "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Workspace already initialized. Use 'evoloop status' to inspect it.")
		fmt.Printf("To reinitialize, delete %s first.\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Workspace.Root = root
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("✓ Wrote %s\n", configPath)

	protectPath := cfg.ProtectFilePath()
	if _, err := os.Stat(protectPath); os.IsNotExist(err) {
		if err := os.WriteFile(protectPath, []byte(starterProtectFile), 0644); err != nil {
			return fmt.Errorf("failed to write protect file: %w", err)
		}
		fmt.Printf("✓ Wrote %s\n", protectPath)
	} else {
		fmt.Printf("✓ Keeping existing %s\n", protectPath)
	}

	if err := os.MkdirAll(cfg.StateDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	fmt.Printf("✓ Created %s\n", cfg.StateDir())

	if cfg.Goals.SeedDefaults {
		store := goals.NewStore(cfg.GoalStatePath())
		goals.NewManager(store, nil).SeedDefaults(cfg.Evolution.Focus)
		fmt.Printf("✓ Seeded %d starter goals\n", store.Count())
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit .evoloop/config.yaml (focus, interval, test command)")
	fmt.Println("  2. Export GEMINI_API_KEY (and optionally ANTHROPIC_API_KEY)")
	fmt.Println("  3. Try one cycle:   evoloop cycle")
	fmt.Println("  4. Start the loop:  evoloop run")
	return nil
}
