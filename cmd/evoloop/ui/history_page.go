package ui

import (
	"fmt"
	"strings"

	"github.com/theRebelliousNerd/evoloop/internal/goals"
	"github.com/theRebelliousNerd/evoloop/internal/ledger"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type HistoryTab int

const (
	TabCycles HistoryTab = iota
	TabGoals
)

// HistoryPageModel renders the ledger and goal backlog as switchable
// tables. It is the main page of the watch dashboard.
type HistoryPageModel struct {
	width  int
	height int
	table  table.Model

	// State
	activeTab HistoryTab

	// Data; entries are kept newest-first to match table rows.
	entries  []ledger.Entry
	goalList []goals.Goal

	// Styles
	styles Styles
}

// NewHistoryPageModel creates the dashboard page.
func NewHistoryPageModel() HistoryPageModel {
	t := table.New(
		table.WithColumns(cycleColumns()),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	return HistoryPageModel{
		table:     t,
		styles:    DefaultStyles(),
		activeTab: TabCycles,
	}
}

// Init initializes the model.
func (m HistoryPageModel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m HistoryPageModel) Update(msg tea.Msg) (HistoryPageModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "tab":
			m.activeTab = (m.activeTab + 1) % 2
			m.refreshTable()
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func cycleColumns() []table.Column {
	return []table.Column{
		{Title: "When", Width: 12},
		{Title: "St", Width: 2},
		{Title: "File", Width: 28},
		{Title: "Description", Width: 44},
	}
}

func goalColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Pri", Width: 4},
		{Title: "Status", Width: 10},
		{Title: "Goal", Width: 60},
	}
}

// buildCycleRows maps ledger entries (newest first) to table rows.
func buildCycleRows(entries []ledger.Entry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		status := "✓"
		if e.Status != ledger.StatusSuccess {
			status = "✗"
		}
		rows = append(rows, table.Row{
			e.Timestamp.Format("01-02 15:04"),
			status,
			e.File,
			e.Description,
		})
	}
	return rows
}

// buildGoalRows maps goals to table rows.
func buildGoalRows(goalList []goals.Goal) []table.Row {
	rows := make([]table.Row, 0, len(goalList))
	for _, g := range goalList {
		rows = append(rows, table.Row{
			g.ID,
			fmt.Sprintf("%d", g.Priority),
			string(g.Status),
			g.Content,
		})
	}
	return rows
}

// refreshTable rebuilds columns and rows for the active tab.
func (m *HistoryPageModel) refreshTable() {
	if m.activeTab == TabCycles {
		m.table.SetColumns(cycleColumns())
		m.table.SetRows(buildCycleRows(m.entries))
	} else {
		m.table.SetColumns(goalColumns())
		m.table.SetRows(buildGoalRows(m.goalList))
	}
}

// View renders the page.
func (m HistoryPageModel) View() string {
	var sb strings.Builder

	// Header / Tabs
	cycStyle := m.styles.Muted
	goalStyle := m.styles.Muted

	if m.activeTab == TabCycles {
		cycStyle = m.styles.Info.Bold(true)
	} else {
		goalStyle = m.styles.Info.Bold(true)
	}

	tabs := lipgloss.JoinHorizontal(lipgloss.Top,
		cycStyle.Render("[ Cycles ]"),
		"  ",
		goalStyle.Render("[ Goals ]"),
		"  ",
		m.styles.Muted.Render("(Press Tab to switch)"),
	)

	sb.WriteString(tabs + "\n\n")
	sb.WriteString(m.table.View())

	// Detail line for the selected cycle
	sb.WriteString("\n\n")
	if m.activeTab == TabCycles && len(m.entries) > 0 {
		sel := m.table.Cursor()
		if sel >= 0 && sel < len(m.entries) {
			e := m.entries[sel]
			if e.Error != "" {
				sb.WriteString(m.styles.Error.Render("Error: ") + e.Error + "\n")
			} else {
				sb.WriteString(m.styles.Muted.Render(e.Description) + "\n")
			}
		}
	}

	return sb.String()
}

// SetSize updates the size.
func (m *HistoryPageModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.table.SetWidth(w - 4)
	if h > 14 {
		m.table.SetHeight(h - 8)
	}

	// Compact columns on narrow terminals.
	if w < 70 {
		if m.activeTab == TabCycles {
			m.table.SetColumns([]table.Column{
				{Title: "St", Width: 2},
				{Title: "File", Width: w - 12},
			})
		} else {
			m.table.SetColumns([]table.Column{
				{Title: "Pri", Width: 4},
				{Title: "Goal", Width: w - 14},
			})
		}
	} else {
		m.refreshTable()
	}
}

// UpdateContent replaces the page data. Entries arrive in ledger order
// (newest last) and are reversed for display.
func (m *HistoryPageModel) UpdateContent(entries []ledger.Entry, goalList []goals.Goal) {
	reversed := make([]ledger.Entry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	m.entries = reversed
	m.goalList = goalList
	m.refreshTable()
}
