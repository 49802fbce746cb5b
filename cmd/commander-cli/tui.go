package main

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"commander/pkg/commander"
)

// Styles.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8")).Padding(0, 1)
	echoStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

const maxScrollback = 2000

type notificationMsg commander.Notification

type replyMsg struct {
	out string
	err error
}

type model struct {
	ctx     context.Context
	client  *commander.GRPCClient
	connID  string
	timeout time.Duration

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	lines   []string
	history []string
	histIdx int
	busy    bool
}

func newModel(ctx context.Context, c *commander.GRPCClient, connID string, timeout time.Duration) model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "HELP"
	in.CharLimit = 256
	in.Focus()
	return model{
		ctx:     ctx,
		client:  c,
		connID:  connID,
		timeout: timeout,
		input:   in,
		lines:   []string{dimStyle.Render("Connected. Type HELP for commands, Ctrl+C to quit.")},
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) send(line string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
		defer cancel()
		out, err := m.client.HandleLine(ctx, m.connID, line)
		return replyMsg{out: out, err: err}
	}
}

func (m *model) appendLines(text string) {
	m.lines = append(m.lines, strings.Split(text, "\n")...)
	if len(m.lines) > maxScrollback {
		m.lines = m.lines[len(m.lines)-maxScrollback:]
	}
	if m.ready {
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := m.input.Value()
			m.input.Reset()
			if t := strings.TrimSpace(line); t != "" && (len(m.history) == 0 || m.history[len(m.history)-1] != t) {
				m.history = append(m.history, t)
			}
			m.histIdx = len(m.history)
			m.appendLines(echoStyle.Render("> " + line))
			m.busy = true
			return m, m.send(line)
		case tea.KeyUp:
			if m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyDown:
			if m.histIdx < len(m.history)-1 {
				m.histIdx++
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			} else {
				m.histIdx = len(m.history)
				m.input.Reset()
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vpHeight := msg.Height - 3 // header, footer, input
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
		return m, nil

	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.appendLines(errStyle.Render("error: " + msg.err.Error()))
		} else {
			m.appendLines(msg.out)
		}
		return m, nil

	case notificationMsg:
		m.appendLines(noteStyle.Render(msg.Time.Local().Format("15:04:05") + " [" + msg.Source + "] " + msg.Text))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}
	header := headerStyle.Width(m.width).Render("commander  " + dimStyle.Render(m.connID))
	status := "ready"
	if m.busy {
		status = "waiting for server..."
	}
	footer := footerStyle.Width(m.width).Render(status + "  |  PgUp/PgDn scroll  |  Up/Down history")
	return header + "\n" + m.viewport.View() + "\n" + footer + "\n" + m.input.View()
}
