// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/ardlink/pkg/ardlink"
	"github.com/Thermoquad/ardlink/pkg/ardproto"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries = 500
	maxHistory    = 50
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// commandRunner is the part of the executor the console drives
type commandRunner interface {
	NextCommand(function string) ardproto.Command
	ExecuteCommand(ctx context.Context, cmd ardproto.Command) (*ardlink.Result, error)
	AwaitCompletion(ctx context.Context, res *ardlink.Result, iterations int) (*ardproto.Frame, error)
	Statistics() *ardproto.Statistics
}

type logKind int

const (
	logSent logKind = iota
	logFrame
	logInfo
	logWarning
	logError
)

type logEntry struct {
	at   time.Time
	kind logKind
	text string
}

// controlModel is the Bubble Tea model for the command console
type controlModel struct {
	runner         commandRunner
	connInfo       string
	pollIterations int

	ctx    context.Context
	cancel context.CancelFunc

	input   textinput.Model
	log     viewport.Model
	entries []logEntry

	history    []string
	historyPos int

	busy     bool
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type commandResultMsg struct {
	res      *ardlink.Result
	err      error
	awaitErr error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(runner commandRunner, connInfo string, pollIterations int) controlModel {
	ti := textinput.New()
	ti.Placeholder = "move_forward 90 1 0.40"
	ti.Prompt = "> "
	ti.CharLimit = 200
	ti.Width = 60
	ti.Focus()

	vp := viewport.New(80, 16)

	ctx, cancel := context.WithCancel(context.Background())

	return controlModel{
		runner:         runner,
		connInfo:       connInfo,
		pollIterations: pollIterations,
		ctx:            ctx,
		cancel:         cancel,
		input:          ti,
		log:            vp,
		entries:        make([]logEntry, 0),
		history:        make([]string, 0),
		width:          80,
		height:         24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			m.cancel()
			return m, tea.Quit

		case tea.KeyEnter:
			return m.submit()

		case tea.KeyUp:
			m.recall(-1)
			return m, nil

		case tea.KeyDown:
			m.recall(1)
			return m, nil

		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.log, cmd = m.log.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case commandResultMsg:
		m.busy = false
		m.handleResult(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit parses the input line and starts executing it
func (m controlModel) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")
	m.pushHistory(line)

	command, err := parseCommandLine(m.runner, line)
	if err != nil {
		m.appendLog(logError, err.Error())
		return m, nil
	}

	m.busy = true
	m.appendLog(logSent, "ARD01 <-- "+ardproto.FormatCommand(command))
	return m, executeCmd(m.ctx, m.runner, command, m.pollIterations)
}

// executeCmd runs one command off the UI goroutine
func executeCmd(ctx context.Context, runner commandRunner, command ardproto.Command, pollIterations int) tea.Cmd {
	return func() tea.Msg {
		res, err := runner.ExecuteCommand(ctx, command)
		if err != nil {
			return commandResultMsg{res: res, err: err}
		}
		msg := commandResultMsg{res: res}
		if res.Acknowledged() && res.Completion == nil {
			_, msg.awaitErr = runner.AwaitCompletion(ctx, res, pollIterations)
		}
		return msg
	}
}

func (m *controlModel) handleResult(msg commandResultMsg) {
	if msg.err != nil {
		var timeout *ardlink.CommandTimeoutError
		switch {
		case errors.As(msg.err, &timeout):
			m.appendLog(logError, fmt.Sprintf("timeout: no response after %d poll iteration(s)", timeout.Iterations))
		case errors.Is(msg.err, ardlink.ErrProtocol):
			m.appendLog(logError, msg.err.Error())
		default:
			m.appendLog(logError, "error: "+msg.err.Error())
		}
		return
	}

	res := msg.res
	if res.Rejected() {
		m.appendLog(logWarning, fmt.Sprintf("%s not registered on the controller (cmdID %d)", res.Command.WireFunction(), res.Command.ID))
		return
	}

	m.appendLog(logInfo, fmt.Sprintf("ARD01 --> %s (cmdID %d, %v)", res.Outcome, res.Command.ID, res.Elapsed.Round(time.Millisecond)))
	for _, f := range res.Payload {
		m.appendLog(logFrame, "ARD01 --> "+strings.TrimSuffix(ardproto.FormatFrame(f), "\n"))
	}
	if msg.awaitErr != nil {
		m.appendLog(logWarning, "no completion: "+msg.awaitErr.Error())
	}
}

func (m *controlModel) appendLog(kind logKind, text string) {
	m.entries = append(m.entries, logEntry{at: time.Now(), kind: kind, text: text})
	if len(m.entries) > maxLogEntries {
		m.entries = m.entries[len(m.entries)-maxLogEntries:]
	}
	m.log.SetContent(m.renderEntries())
	m.log.GotoBottom()
}

func (m *controlModel) pushHistory(line string) {
	if n := len(m.history); n == 0 || m.history[n-1] != line {
		m.history = append(m.history, line)
	}
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.historyPos = len(m.history)
}

// recall moves through the command history; past the newest entry the
// input is cleared.
func (m *controlModel) recall(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.historyPos = max(0, min(len(m.history), m.historyPos+delta))
	if m.historyPos == len(m.history) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.historyPos])
	m.input.CursorEnd()
}

func (m *controlModel) resize() {
	// title, blank, input box (3), stats bar (3), log border (2)
	m.log.Width = max(m.width-4, 20)
	m.log.Height = max(m.height-10, 3)
	m.input.Width = max(m.width-8, 10)
	m.log.SetContent(m.renderEntries())
}

// parseCommandLine turns "function arg..." into a command with a fresh ID
func parseCommandLine(runner commandRunner, line string) (ardproto.Command, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return ardproto.Command{}, fmt.Errorf("%w: empty command line", ardproto.ErrInvalidCommand)
	}
	function := strings.TrimSuffix(words[0], "()")
	command, err := ardproto.ParseArgs(runner.NextCommand(function), words[1:])
	if err != nil {
		return ardproto.Command{}, err
	}
	if err := command.Validate(); err != nil {
		return ardproto.Command{}, err
	}
	return command, nil
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	sentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("ARDLINK CONTROL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Enter=send Up/Down=history PgUp/PgDn=scroll Esc=quit", m.connInfo)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.log.View()))
	s.WriteString("\n")

	input := m.input.View()
	if m.busy {
		input = warningStyle.Render("waiting for response...")
	}
	s.WriteString(boxStyle.Render(input))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar())
	return s.String()
}

func (m controlModel) renderEntries() string {
	var s strings.Builder
	for _, e := range m.entries {
		line := fmt.Sprintf("[%s] %s", e.at.Format("15:04:05.000"), e.text)
		switch e.kind {
		case logSent:
			line = sentStyle.Render(line)
		case logWarning:
			line = warningStyle.Render(line)
		case logError:
			line = errorStyle.Render(line)
		case logInfo:
			line = statsValueStyle.Render(line)
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	return s.String()
}

func (m controlModel) renderStatisticsBar() string {
	stats := m.runner.Statistics()
	if stats == nil {
		return ""
	}
	snap := stats.Snapshot()

	item := func(label string, value uint64) string {
		return statsLabelStyle.Render(label) + " " + statsValueStyle.Render(fmt.Sprintf("%d", value))
	}
	bad := func(label string, value uint64) string {
		v := statsValueStyle.Render(fmt.Sprintf("%d", value))
		if value > 0 {
			v = errorStyle.Render(fmt.Sprintf("%d", value))
		}
		return statsLabelStyle.Render(label) + " " + v
	}

	return boxStyle.Render(strings.Join([]string{
		item("Sent:", snap.CommandsSent),
		item("Acked:", snap.Acknowledged),
		item("Completed:", snap.Completed),
		item("Rejected:", snap.Rejected),
		bad("Timeouts:", snap.Timeouts),
		bad("Protocol:", snap.ProtocolFailures),
		bad("Decode:", snap.DecodeErrors),
	}, "  "))
}
