// ABOUTME: Bubbletea model for the stress dashboard
// ABOUTME: Tracks one row per session and renders totals with lipgloss
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SessionStatus is one row of the dashboard
type SessionStatus struct {
	ID       string
	Codec    string
	State    string
	Producer string
	Consumer string
	InputsIn int64
	BytesIn  int64
	BytesOut int64
	Stale    int64
	Degraded bool
	Done     bool
	Err      string
}

// StatusMsg replaces the row with the same ID
type StatusMsg SessionStatus

// FinishedMsg marks the run complete
type FinishedMsg struct {
	Err error
}

type tickMsg time.Time

// Model represents the TUI state
type Model struct {
	title     string
	sessions  map[string]SessionStatus
	startTime time.Time
	elapsed   time.Duration
	finished  bool
	runErr    error
	showIDs   bool
	quitting  bool
	quitChan  chan struct{}

	width  int
	height int
}

// NewModel creates a dashboard model
func NewModel(title string, quit chan struct{}) Model {
	return Model{
		title:     title,
		sessions:  make(map[string]SessionStatus),
		startTime: time.Now(),
		quitChan:  quit,
	}
}

// Init starts the clock
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		if !m.finished {
			m.elapsed = time.Since(m.startTime).Round(time.Second)
		}
		return m, tickEvery()
	case StatusMsg:
		m.sessions[msg.ID] = SessionStatus(msg)
	case FinishedMsg:
		m.finished = true
		m.runErr = msg.Err
		m.elapsed = time.Since(m.startTime).Round(time.Millisecond)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.quitChan != nil {
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "i":
		m.showIDs = !m.showIDs
	}
	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return "Stopping sessions...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	rows := m.rows()
	done, degraded := 0, 0
	var in, out int64
	for _, r := range rows {
		if r.Done {
			done++
		}
		if r.Degraded {
			degraded++
		}
		in += r.BytesIn
		out += r.BytesOut
	}

	b.WriteString(headerStyle.Render("Sessions: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d (%d done, %d degraded)", len(rows), done, degraded)))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Traffic:  "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s in, %s out", formatBytes(in), formatBytes(out))))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Elapsed:  "))
	b.WriteString(valueStyle.Render(m.elapsed.String()))
	b.WriteString("\n\n")

	for _, r := range rows {
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}

	if m.finished {
		b.WriteString("\n")
		if m.runErr != nil {
			b.WriteString(badStyle.Render("Failed: " + m.runErr.Error()))
		} else {
			b.WriteString(okStyle.Render("All sessions completed"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("i: toggle IDs  q: quit"))
	return b.String()
}

func (m Model) rows() []SessionStatus {
	rows := make([]SessionStatus, 0, len(m.sessions))
	for _, s := range m.sessions {
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func (m Model) renderRow(r SessionStatus) string {
	name := r.ID
	if !m.showIDs && len(name) > 8 {
		name = name[:8]
	}
	mark := valueStyle.Render("…")
	switch {
	case r.Degraded:
		mark = badStyle.Render("✗")
	case r.Done:
		mark = okStyle.Render("✓")
	}
	line := fmt.Sprintf("  %s %-8s %-10s %-8s/%-8s in %-6d %9s → %-9s stale %d",
		mark, name, r.State, r.Producer, r.Consumer, r.InputsIn,
		formatBytes(r.BytesIn), formatBytes(r.BytesOut), r.Stale)
	if r.Err != "" {
		line += " " + badStyle.Render(truncate(r.Err, 40))
	}
	return line
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
