// Package main implements the evoloop CLI.
// This file implements the live dashboard using bubbletea.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/theRebelliousNerd/evoloop/cmd/evoloop/ui"
	"github.com/theRebelliousNerd/evoloop/internal/config"
	"github.com/theRebelliousNerd/evoloop/internal/goals"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const (
	watchRefreshInterval = 2 * time.Second
	watchHistoryLimit    = 50
	watchTrendLimit      = 10
)

// watchCmd opens the live dashboard
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live evolution dashboard",
	Long: `Shows the evolution ledger and the goal backlog as a live terminal
dashboard, refreshing while the daemon runs in another process. The
dashboard is read-only; it never writes to the ledger or the workspace.`,
	RunE: runWatch,
}

// watchModel is the bubbletea model for the dashboard
type watchModel struct {
	// UI components
	spinner spinner.Model
	page    ui.HistoryPageModel
	styles  ui.Styles

	// Backend
	cfg   *config.Config
	store *ledger.Store

	// State
	width      int
	height     int
	ready      bool
	loading    bool
	err        error
	cycles     int
	growth     int
	scores     []int
	lastUpdate time.Time
}

// Messages for tea updates
type (
	tickMsg  time.Time
	statsMsg struct {
		entries []ledger.Entry
		goals   []goals.Goal
		scores  []int
		cycles  int
		growth  int
		err     error
	}
)

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	store, err := ledger.NewStore(cfg.StateDir())
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	p := tea.NewProgram(newWatchModel(cfg, store), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

// newWatchModel initializes the dashboard model
func newWatchModel(cfg *config.Config, store *ledger.Store) watchModel {
	styles := ui.DefaultStyles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	return watchModel{
		spinner: sp,
		page:    ui.NewHistoryPageModel(),
		styles:  styles,
		cfg:     cfg,
		store:   store,
		loading: true,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

// refresh reads the ledger and goal store off the UI goroutine.
func (m watchModel) refresh() tea.Cmd {
	store, cfg := m.store, m.cfg
	return func() tea.Msg {
		entries, err := store.Recent(watchHistoryLimit)
		if err != nil {
			return statsMsg{err: err}
		}
		scores, _ := store.RecentGrowthScores(watchTrendLimit)
		cycles, _ := store.CyclesRun()
		growth, _ := store.GrowthScore()
		goalList := goals.NewStore(cfg.GoalStatePath()).ActiveGoals(0)

		return statsMsg{
			entries: entries,
			goals:   goalList,
			scores:  scores,
			cycles:  cycles,
			growth:  growth,
		}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.refresh())
		}
		var cmd tea.Cmd
		m.page, cmd = m.page.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.page.SetSize(msg.Width, msg.Height-6)
		return m, nil

	case statsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.cycles = msg.cycles
			m.growth = msg.growth
			m.scores = msg.scores
			m.lastUpdate = time.Now()
			m.page.UpdateContent(msg.entries, msg.goals)
		}
		return m, tea.Tick(watchRefreshInterval, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})

	case tickMsg:
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.refresh())

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m watchModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := m.styles.Header.Render(" evoloop ")
	cycles := m.styles.Badge.Render(fmt.Sprintf("cycles %d", m.cycles))
	growth := m.styles.Bold.Render(fmt.Sprintf("growth %d", m.growth))
	trend := m.styles.Muted.Render(trendLine(m.scores))

	var status string
	if m.loading {
		status = m.styles.Spinner.Render(m.spinner.View()) + m.styles.Warning.Render("refreshing")
	} else {
		status = m.styles.Success.Render("● watching")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title, " ", cycles, "  ", growth, "  ", trend, "  ", status,
	)

	body := m.styles.Content.Render(m.page.View())
	if m.err != nil {
		body += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	footer := m.styles.Footer.Render(fmt.Sprintf(
		"Tab: switch view • ↑/↓: select • r: refresh • q: quit • updated %s",
		m.lastUpdate.Format("15:04:05")))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.styles.RenderDivider(m.width),
		body,
		footer,
	)
}

// trendLine renders the recent growth samples oldest to newest.
func trendLine(scores []int) string {
	if len(scores) == 0 {
		return "no growth samples"
	}
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return strings.Join(parts, " → ")
}
