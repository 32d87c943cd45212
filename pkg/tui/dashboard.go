// Package tui provides a terminal machines dashboard using Bubble Tea,
// with live status from the Landscape API and an interactive filter
// box speaking the same query language as the MCP tools.
package tui

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/landscape"
	"github.com/landscape-community/landscape-mcp/pkg/query"
)

// A machine counts as offline when it has not pinged for 24 hours.
const offlineAfter = 24 * time.Hour

const refreshInterval = 30 * time.Second

// ------------------------------------------------------------------
// Styles
// ------------------------------------------------------------------

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#E95420")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7B68EE")).
			PaddingLeft(1).
			PaddingRight(1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF88"))

	offlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444"))

	rebootStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB347"))

	cellStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			PaddingRight(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444")).
			Italic(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#555555")).
			Padding(0, 1)

	summaryOnline = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF88"))

	summaryOffline = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF4444"))
)

// ------------------------------------------------------------------
// Messages
// ------------------------------------------------------------------

type tickMsg time.Time
type computersMsg []landscape.Computer
type fetchErrMsg struct{ err error }

// ------------------------------------------------------------------
// Model
// ------------------------------------------------------------------

// MachinesDashboard is the Bubble Tea model for the machines TUI.
type MachinesDashboard struct {
	client   landscape.Client
	defaults config.Defaults
	parser   *query.Parser

	filter    textinput.Model
	computers []landscape.Computer
	visible   []landscape.Computer
	filterErr error
	fetchErr  error
	updated   time.Time

	width    int
	height   int
	quitting bool
}

// NewMachinesDashboard creates a new machines dashboard TUI model.
func NewMachinesDashboard(client landscape.Client, defaults config.Defaults) MachinesDashboard {
	ti := textinput.New()
	ti.Placeholder = "filter: tag:production needs:reboot:true ..."
	ti.Prompt = "/ "
	ti.CharLimit = 120
	ti.Focus()

	return MachinesDashboard{
		client:   client,
		defaults: defaults,
		parser:   query.NewParser(query.DefaultFields(), query.DefaultFreeTextField),
		filter:   ti,
		width:    80,
		height:   24,
	}
}

func (m MachinesDashboard) Init() tea.Cmd {
	return tea.Batch(m.fetchComputers, tickCmd())
}

func (m MachinesDashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+r":
			return m, m.fetchComputers
		}
		// Remaining keys edit the filter box.
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchComputers, tickCmd())

	case computersMsg:
		m.computers = []landscape.Computer(msg)
		m.fetchErr = nil
		m.updated = time.Now()
		m.applyFilter()
		return m, nil

	case fetchErrMsg:
		m.fetchErr = msg.err
		return m, nil
	}

	return m, nil
}

// applyFilter re-evaluates the filter box against the fetched set.
// A malformed filter keeps the previous view and surfaces the error.
func (m *MachinesDashboard) applyFilter() {
	q, err := m.parser.Parse(m.filter.Value())
	if err != nil {
		m.filterErr = err
		return
	}
	m.filterErr = nil

	records := make([]query.Record, len(m.computers))
	for i := range m.computers {
		records[i] = &m.computers[i]
	}
	matched := q.Evaluate(records)

	m.visible = make([]landscape.Computer, 0, len(matched))
	for _, r := range matched {
		m.visible = append(m.visible, *(r.(*landscape.Computer)))
	}
}

func (m MachinesDashboard) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Landscape Machines Dashboard"))
	b.WriteString("\n")

	// Summary bar
	online, offline, reboot := summarize(m.computers)
	summaryLine := fmt.Sprintf(
		"%s  %s  %s",
		summaryOnline.Render(fmt.Sprintf("● %d online", online)),
		summaryOffline.Render(fmt.Sprintf("○ %d offline", offline)),
		rebootStyle.Render(fmt.Sprintf("⟳ %d need reboot", reboot)),
	)
	b.WriteString(boxStyle.Render(fmt.Sprintf("Total: %d machines  │  %s",
		len(m.computers), summaryLine)))
	b.WriteString("\n\n")

	// Filter box
	b.WriteString(m.filter.View())
	b.WriteString("\n")
	if m.filterErr != nil {
		b.WriteString(errorStyle.Render("  " + m.filterErr.Error()))
		b.WriteString("\n")
	}
	if m.fetchErr != nil {
		b.WriteString(errorStyle.Render("  fetch failed: " + m.fetchErr.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Machine table
	if len(m.visible) == 0 {
		b.WriteString(footerStyle.Render("  No machines match the current filter."))
		b.WriteString("\n")
	} else {
		header := fmt.Sprintf("%-24s %-12s %-18s %-24s %s",
			headerStyle.Render("HOSTNAME"),
			headerStyle.Render("STATUS"),
			headerStyle.Render("DISTRIBUTION"),
			headerStyle.Render("TAGS"),
			headerStyle.Render("LAST PING"),
		)
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("─", clampInt(m.width, 100)))
		b.WriteString("\n")

		for _, c := range m.visible {
			row := fmt.Sprintf("%-24s %-12s %-18s %-24s %s",
				cellStyle.Render(c.Hostname),
				renderStatus(c),
				cellStyle.Render(c.Distribution),
				cellStyle.Render(formatTags(c.Tags, 22)),
				cellStyle.Render(renderLastPing(c.LastPingTime)),
			)
			b.WriteString(row)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render(fmt.Sprintf("  [ctrl+r] refresh  [esc] quit  │  Updated: %s",
		m.updated.Format("15:04:05"))))

	return b.String()
}

// ------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------

func summarize(computers []landscape.Computer) (online, offline, reboot int) {
	for _, c := range computers {
		if isOnline(c) {
			online++
		} else {
			offline++
		}
		if c.NeedsReboot {
			reboot++
		}
	}
	return online, offline, reboot
}

func isOnline(c landscape.Computer) bool {
	if c.LastPingTime.IsZero() {
		return false
	}
	return time.Since(c.LastPingTime) <= offlineAfter
}

func renderStatus(c landscape.Computer) string {
	if !isOnline(c) {
		return offlineStyle.Render("○ offline")
	}
	if c.NeedsReboot {
		return rebootStyle.Render("⟳ reboot")
	}
	return onlineStyle.Render("● online")
}

func renderLastPing(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

func formatTags(tags []string, maxLen int) string {
	if len(tags) == 0 {
		return "-"
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	s := strings.Join(sorted, ",")
	if len(s) > maxLen {
		return s[:maxLen-1] + "…"
	}
	return s
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m MachinesDashboard) fetchComputers() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	computers, err := m.client.GetComputers(ctx, "", m.defaults.FetchCap)
	if err != nil {
		return fetchErrMsg{err: err}
	}
	return computersMsg(computers)
}

func clampInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RunMachinesDashboard starts the Bubble Tea machines dashboard.
func RunMachinesDashboard(client landscape.Client, defaults config.Defaults) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("dashboard requires an interactive terminal")
	}

	model := NewMachinesDashboard(client, defaults)
	if w, h, err := term.GetSize(fd); err == nil {
		model.width, model.height = w, h
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
