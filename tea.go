package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
	"marketing-groupchat/groupchat"
	"marketing-groupchat/repl"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			MarginBottom(1)

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	faintStyle = lipgloss.NewStyle().Faint(true)
)

// chatModel is the full-screen alternative to the line console.
type chatModel struct {
	ctx    context.Context
	conv   repl.Conversation
	usage  *client.UsageTracker
	events chan tea.Msg

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	markdown bool

	lines    []string
	status   string
	busy     bool
	ready    bool
	quitting bool
}

// replyMsg carries one participant turn out of a running invocation.
type replyMsg struct {
	message agent.Message
}

// outcomeMsg is sent once the invocation for a user line has returned.
type outcomeMsg struct {
	outcome groupchat.Outcome
}

func newChatModel(ctx context.Context, conv repl.Conversation, usage *client.UsageTracker, markdown bool) chatModel {
	ti := textinput.New()
	ti.Prompt = repl.Prompt
	ti.Placeholder = "Ask the marketing team something..."
	ti.CharLimit = 4000
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))

	if usage == nil {
		usage = client.NewUsageTracker()
	}

	return chatModel{
		ctx:      ctx,
		conv:     conv,
		usage:    usage,
		events:   make(chan tea.Msg),
		input:    ti,
		spinner:  s,
		markdown: markdown,
		status:   "Type your input, 'reset' to restart or 'exit' to quit.",
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.viewport.YPosition = 1
			m.ready = true
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 6
		m.input.Width = msg.Width - len(repl.Prompt) - 2
		if m.markdown {
			renderer, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-4),
			)
			if err == nil {
				m.renderer = renderer
			}
		}
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "pgup", "pgdown", "up", "down":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if !strings.EqualFold(line, groupchat.CommandExit) && !strings.EqualFold(line, groupchat.CommandReset) {
				m.addLine(userStyle.Render(repl.Prompt + line))
			}
			m.busy = true
			m.status = "Waiting for the team..."
			return m, tea.Batch(m.handle(line), m.waitForEvent(), m.spinner.Tick)
		}
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case replyMsg:
		m.addLine(m.renderReply(msg.message))
		m.status = fmt.Sprintf("%s replied", msg.message.Author)
		cmds = append(cmds, m.waitForEvent())

	case outcomeMsg:
		m.busy = false
		m.status = "Ready"
		switch msg.outcome.Kind {
		case groupchat.OutcomeShutdown:
			m.quitting = true
			return m, tea.Quit
		case groupchat.OutcomeReset:
			m.lines = nil
			m.addLine(faintStyle.Render("[Conversation has been reset]"))
		case groupchat.OutcomeErrored:
			m.addLine(errorStyle.Render(fmt.Sprintf("Error during chat invocation: %v", msg.outcome.Err)))
		case groupchat.OutcomeCompleted:
			if msg.outcome.Reason != groupchat.ReasonSatisfied {
				m.addLine(faintStyle.Render(fmt.Sprintf("[Stopped after %d turns and %d cycles: %s]",
					msg.outcome.Turns, msg.outcome.Cycles, msg.outcome.Reason)))
			}
		}

	case spinner.TickMsg:
		if m.busy {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	default:
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m chatModel) View() string {
	if m.quitting {
		return fmt.Sprintf("\nGoodbye! 👋\nTokens used: %d (~$%.4f)\n", m.usage.TotalTokens(), m.usage.TotalCost())
	}
	if !m.ready {
		return "\nInitializing...\n"
	}

	header := titleStyle.Render("📣 Marketing Group Chat")
	status := faintStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	footer := faintStyle.Render(fmt.Sprintf("tokens: %d • ↑/↓ pgup/pgdn: scroll • ctrl+c: quit", m.usage.TotalTokens()))

	return header + "\n" + m.viewport.View() + "\n" + status + "\n" + m.input.View() + "\n" + footer
}

// handle runs one user line through the conversation and streams every
// turn, then the outcome, through the events channel in order.
func (m chatModel) handle(line string) tea.Cmd {
	ctx, conv, events := m.ctx, m.conv, m.events
	return func() tea.Msg {
		send := func(msg tea.Msg) {
			select {
			case events <- msg:
			case <-ctx.Done():
			}
		}
		outcome := conv.Handle(ctx, line, func(msg agent.Message) {
			send(replyMsg{message: msg})
		})
		send(outcomeMsg{outcome: outcome})
		return nil
	}
}

// waitForEvent blocks until the running invocation reports something.
func (m chatModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m chatModel) renderReply(msg agent.Message) string {
	content := strings.TrimSpace(msg.Content)
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(content); err == nil {
			content = "\n" + strings.Trim(rendered, "\n")
		}
	}
	return nameStyle.Render(fmt.Sprintf("# %s:", strings.ToUpper(msg.Author))) + " " + content
}

func (m *chatModel) addLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n\n"))
	m.viewport.GotoBottom()
}
