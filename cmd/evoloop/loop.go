// Package main implements the evoloop CLI.
//
// This file wires the full supervision graph used by the run and cycle
// commands: guards, git gateway, ledger, goals, generator, orchestrator,
// and controller.
package main

import (
	"fmt"

	"github.com/theRebelliousNerd/evoloop/internal/auditor"
	"github.com/theRebelliousNerd/evoloop/internal/config"
	"github.com/theRebelliousNerd/evoloop/internal/correction"
	"github.com/theRebelliousNerd/evoloop/internal/evolution"
	"github.com/theRebelliousNerd/evoloop/internal/generator"
	"github.com/theRebelliousNerd/evoloop/internal/goals"
	"github.com/theRebelliousNerd/evoloop/internal/guard"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"
	"github.com/theRebelliousNerd/evoloop/internal/vcs"

	"go.uber.org/zap"
)

// supervisor bundles the wired component graph for one workspace.
type supervisor struct {
	cfg       *config.Config
	protector *guard.Protector
	store     *ledger.Store
	goalStore *goals.Store
	gen       *generator.Generator
	orch      *evolution.Orchestrator
	ctrl      *evolution.Controller
}

// buildSupervisor constructs the full evolution stack for the given
// config. The caller owns the returned supervisor and must Close it.
func buildSupervisor(cfg *config.Config) (*supervisor, error) {
	root := cfg.Workspace.Root

	protector := guard.NewProtector(root)
	validator := guard.NewValidator(protector)
	applier := guard.NewApplier(root, protector)
	runner := guard.NewRunner(root, cfg.GetTestTimeout(), cfg.Evolution.TestCommand)
	git := vcs.NewGateway(root, cfg.Git.Remote, cfg.Git.Branch, cfg.GetGitTimeout())

	store, err := ledger.NewStore(cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	gen, err := generator.New(cfg,
		generator.WithProtectionFilter(protector.IsProtected),
		generator.WithProposalCheck(validator.Validate))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build generator: %w", err)
	}

	goalStore := goals.NewStore(cfg.GoalStatePath())
	goalMgr := goals.NewManager(goalStore, gen)
	if cfg.Goals.SeedDefaults {
		goalMgr.SeedDefaults(cfg.Evolution.Focus)
	}

	orch := evolution.NewOrchestrator(evolution.Deps{
		Generator: gen,
		Validator: validator,
		Applier:   applier,
		Tests:     runner,
		Git:       git,
		Records:   store,
		Snapshot:  evolution.NewSnapshotter(root, protector.IsProtected),
		Focus:     cfg.Evolution.Focus,
	})

	ctrl := evolution.NewController(evolution.ControllerDeps{
		Config:    cfg,
		Orch:      orch,
		Generator: gen,
		Goals:     goalMgr,
		Auditor:   auditor.New(auditor.DefaultConfig()),
		Policy:    correction.NewManager(),
		Records:   store,
	})

	return &supervisor{
		cfg:       cfg,
		protector: protector,
		store:     store,
		goalStore: goalStore,
		gen:       gen,
		orch:      orch,
		ctrl:      ctrl,
	}, nil
}

// Close releases the supervisor's watchers and the ledger handle.
func (s *supervisor) Close() {
	s.protector.Stop()
	if err := s.store.Close(); err != nil && logger != nil {
		logger.Warn("ledger close failed", zap.Error(err))
	}
}
