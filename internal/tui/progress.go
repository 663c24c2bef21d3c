// Package tui renders live migration progress in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressMsg reports copy progress for one table. The migrate command
// forwards these from the executor's progress callback via Program.Send.
type ProgressMsg struct {
	Table string
	Done  int64
	Total int64
}

// TableDoneMsg marks a table as fully copied.
type TableDoneMsg struct {
	Table string
}

// RunDoneMsg ends the program once the run has committed or rolled back.
type RunDoneMsg struct {
	Err error
}

type tableState int

const (
	statePending tableState = iota
	stateRunning
	stateDone
)

type tableRow struct {
	name  string
	done  int64
	total int64
	state tableState
}

// ProgressModel shows one progress bar per table in copy order. Quitting
// with q or ctrl-c cancels the run context, which rolls the migration
// back; the program exits when RunDoneMsg arrives.
type ProgressModel struct {
	cancel context.CancelFunc

	rows  []tableRow
	index map[string]int

	spin     spinner.Model
	width    int
	canceled bool
	finished bool
	err      error
}

// NewProgressModel builds a model listing tables in copy order. The
// cancel function aborts the running migration.
func NewProgressModel(tables []string, cancel context.CancelFunc) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = highlightStyle

	rows := make([]tableRow, len(tables))
	index := make(map[string]int, len(tables))
	for i, name := range tables {
		rows[i] = tableRow{name: name}
		index[name] = i
	}

	return ProgressModel{
		cancel: cancel,
		rows:   rows,
		index:  index,
		spin:   s,
		width:  80,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.finished {
				return m, tea.Quit
			}
			if !m.canceled {
				m.canceled = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		case "enter":
			if m.finished {
				return m, tea.Quit
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case ProgressMsg:
		m = m.updateRow(msg.Table, func(r *tableRow) {
			r.done = msg.Done
			r.total = msg.Total
			if r.state == statePending {
				r.state = stateRunning
			}
		})
		return m, nil

	case TableDoneMsg:
		m = m.updateRow(msg.Table, func(r *tableRow) {
			r.state = stateDone
			r.done = r.total
		})
		return m, nil

	case RunDoneMsg:
		m.finished = true
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// updateRow applies fn to the named table's row, appending a row for
// tables not known at construction.
func (m ProgressModel) updateRow(name string, fn func(*tableRow)) ProgressModel {
	i, ok := m.index[name]
	if !ok {
		m.rows = append(m.rows, tableRow{name: name})
		i = len(m.rows) - 1
		m.index[name] = i
	}
	fn(&m.rows[i])
	return m
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("pgrekey migration"))
	b.WriteString("\n\n")

	barWidth := m.width - 60
	if barWidth > 30 {
		barWidth = 30
	}

	for _, r := range m.rows {
		icon := dimStyle.Render("..")
		switch r.state {
		case stateRunning:
			icon = m.spin.View()
		case stateDone:
			icon = successStyle.Render("OK")
		}

		pct := 0.0
		if r.total > 0 {
			pct = float64(r.done) / float64(r.total) * 100
		} else if r.state == stateDone {
			pct = 100
		}

		b.WriteString(fmt.Sprintf("  %s %-28s %s %8d / %d\n",
			icon, r.name, renderProgressBar(pct, barWidth), r.done, r.total))
	}

	b.WriteString("\n")
	switch {
	case m.finished && m.err != nil:
		b.WriteString(errStyle.Render("  Migration failed, all changes rolled back") + "\n")
		b.WriteString(dimStyle.Render("  Press enter to exit") + "\n")
	case m.finished:
		b.WriteString(successStyle.Render("  Migration committed") + "\n")
		b.WriteString(dimStyle.Render("  Press enter to exit") + "\n")
	case m.canceled:
		b.WriteString(errStyle.Render("  Canceling, rolling back...") + "\n")
	default:
		b.WriteString(dimStyle.Render("  q: cancel") + "\n")
	}

	return b.String()
}

// Canceled reports whether the user aborted the run.
func (m ProgressModel) Canceled() bool {
	return m.canceled
}

// Err returns the run error delivered with RunDoneMsg.
func (m ProgressModel) Err() error {
	return m.err
}

func renderProgressBar(pct float64, width int) string {
	if width < 10 {
		width = 10
	}
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", empty) + "]"
}

// styles
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)
