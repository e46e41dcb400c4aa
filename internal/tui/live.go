// Package tui renders a running FMU simulation in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/fmusim/internal/dynamo"
)

const historyCapacity = 600

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(22)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Width(22)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// SampleMsg carries one accepted host state.
type SampleMsg struct {
	T float64
	X dynamo.State
}

// DoneMsg is sent once the simulation returns.
type DoneMsg struct {
	Result *dynamo.Result
	Err    error
}

// Live is the bubbletea model of the live view.
type Live struct {
	title    string
	names    []string
	stop     float64
	cancel   context.CancelFunc
	history  [][]float64
	current  dynamo.State
	t        float64
	samples  int
	selected int
	frozen   bool
	done     bool
	events   int
	err      error
	width    int
}

// NewLive builds the view. cancel is invoked when the user quits.
func NewLive(title string, names []string, stop float64, cancel context.CancelFunc) Live {
	return Live{
		title:   title,
		names:   names,
		stop:    stop,
		cancel:  cancel,
		history: make([][]float64, len(names)),
		width:   80,
	}
}

func (m Live) Init() tea.Cmd { return nil }

func (m Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "down", "j", "tab":
			if len(m.names) > 0 {
				m.selected = (m.selected + 1) % len(m.names)
			}
		case "up", "k", "shift+tab":
			if len(m.names) > 0 {
				m.selected = (m.selected + len(m.names) - 1) % len(m.names)
			}
		case " ", "p":
			m.frozen = !m.frozen
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case SampleMsg:
		m.record(msg)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		if msg.Result != nil {
			m.events = len(msg.Result.Events)
		}
	}
	return m, nil
}

func (m *Live) record(msg SampleMsg) {
	m.samples++
	if m.frozen {
		return
	}
	m.t = msg.T
	m.current = msg.X
	for i := range m.history {
		if i >= len(msg.X) {
			break
		}
		h := append(m.history[i], msg.X[i])
		if len(h) > historyCapacity {
			h = h[len(h)-historyCapacity:]
		}
		m.history[i] = h
	}
}

// Selected is the name of the plotted variable.
func (m Live) Selected() string {
	if len(m.names) == 0 {
		return ""
	}
	return m.names[m.selected]
}

func (m Live) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")

	status := "RUNNING"
	switch {
	case m.done && m.err != nil:
		status = "FAILED"
	case m.done:
		status = "DONE"
	case m.frozen:
		status = "FROZEN"
	}
	s.WriteString(fmt.Sprintf("%s  t=%.3f/%.3f  samples=%d\n", status, m.t, m.stop, m.samples))

	if len(m.names) > 0 {
		if h := m.history[m.selected]; len(h) > 1 {
			w := m.width - 12
			if w < 20 {
				w = 20
			}
			chart := asciigraph.Plot(h, asciigraph.Height(12), asciigraph.Width(w), asciigraph.Caption(m.names[m.selected]))
			s.WriteString(graphStyle.Render(chart) + "\n")
		}
	}

	for i, name := range m.names {
		label := labelStyle
		if i == m.selected {
			label = activeStyle
		}
		val := "-"
		if i < len(m.current) {
			val = fmt.Sprintf("%.6g", m.current[i])
		}
		s.WriteString(label.Render(name) + valueStyle.Render(val) + "\n")
	}

	if m.done {
		s.WriteString(fmt.Sprintf("\nevents: %d\n", m.events))
		if m.err != nil {
			s.WriteString(errStyle.Render(m.err.Error()) + "\n")
		}
	}
	s.WriteString(helpStyle.Render("↑/↓ variable  space freeze  q quit"))
	return s.String()
}
