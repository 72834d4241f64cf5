package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/theRebelliousNerd/evoloop/internal/goals"
	"github.com/theRebelliousNerd/evoloop/internal/guard"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"
	"github.com/theRebelliousNerd/evoloop/internal/vcs"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// statusCmd shows workspace and loop status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show evoloop workspace status",
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetGitTimeout())
	defer cancel()

	var (
		cycles    int
		growth    int
		entries   int
		summary   goals.Summary
		gitStatus vcs.Status
	)

	// Gather independent sources in parallel; soft failures become
	// notes instead of aborting the whole report.
	var mu sync.Mutex
	var notes []string
	addNote := func(format string, a ...interface{}) {
		mu.Lock()
		notes = append(notes, fmt.Sprintf(format, a...))
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		store, err := ledger.NewStore(cfg.StateDir())
		if err != nil {
			addNote("ledger unavailable: %v", err)
			return nil
		}
		defer store.Close()

		if cycles, err = store.CyclesRun(); err != nil {
			addNote("cycle counter unreadable: %v", err)
		}
		if growth, err = store.GrowthScore(); err != nil {
			addNote("growth score unreadable: %v", err)
		}
		if entries, err = store.Count(); err != nil {
			addNote("ledger count unreadable: %v", err)
		}
		return nil
	})

	eg.Go(func() error {
		summary = goals.NewStore(cfg.GoalStatePath()).Summarize()
		return nil
	})

	eg.Go(func() error {
		git := vcs.NewGateway(cfg.Workspace.Root, cfg.Git.Remote, cfg.Git.Branch, cfg.GetGitTimeout())
		st, err := git.GitStatus(egCtx)
		if err != nil {
			addNote("git status unavailable: %v", err)
			return nil
		}
		gitStatus = st
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	fmt.Println("evoloop Status")
	fmt.Println("==============")
	fmt.Printf("Workspace: %s\n", cfg.Workspace.Root)
	fmt.Printf("Focus:     %s\n", orNone(cfg.Evolution.Focus))
	fmt.Printf("Interval:  %s, audit every %d cycles\n", cfg.GetCycleInterval(), cfg.Audit.EveryCycles)
	fmt.Println()

	// Generator backends
	if cfg.Generator.APIKey != "" || os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		fmt.Println("✓ Gemini API key configured")
	} else {
		fmt.Println("✗ Gemini API key not configured")
	}
	if cfg.Generator.AnthropicAPIKey != "" || os.Getenv("ANTHROPIC_API_KEY") != "" {
		fmt.Println("✓ Anthropic API key configured (alternative model)")
	} else {
		fmt.Println("✗ Anthropic API key not configured")
	}

	// Guard rails
	protector := guard.NewProtector(cfg.Workspace.Root)
	fmt.Printf("✓ Protected paths: %d\n", len(protector.Protected()))
	fmt.Println()

	fmt.Printf("Cycles run:     %d\n", cycles)
	fmt.Printf("Growth score:   %d\n", growth)
	fmt.Printf("Ledger entries: %d\n", entries)
	fmt.Printf("Goals:          %d total, %d actionable\n", summary.Total, summary.Actionable)

	if gitStatus.LocalHead != "" {
		sync := "in sync"
		if !gitStatus.IsSynced {
			sync = fmt.Sprintf("%d ahead, %d behind", gitStatus.Ahead, gitStatus.Behind)
		}
		dirty := ""
		if gitStatus.HasUncommitted {
			dirty = ", uncommitted changes"
		}
		fmt.Printf("Git:            %s on %s/%s (%s%s)\n",
			shortHash(gitStatus.LocalHead), cfg.Git.Remote, cfg.Git.Branch, sync, dirty)
	}

	if len(notes) > 0 {
		fmt.Println()
		for _, n := range notes {
			fmt.Printf("⚠ %s\n", n)
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
