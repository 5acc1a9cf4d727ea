package console

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// replyMsg carries an assistant reply into the running program.
type replyMsg struct {
	content string
}

type chatLine struct {
	role    string
	content string
}

type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var defaultKeyMap = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("ctrl+c", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "pgup"),
		key.WithHelp("↑", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "pgdown"),
		key.WithHelp("↓", "scroll down"),
	),
}

type model struct {
	width, height int
	viewport      viewport.Model
	input         textinput.Model
	lines         []chatLine
	keys          keyMap
	submit        func(string)
}

func newModel(submit func(string)) model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("Connected. Type a message to chat, /help for commands.\n")

	return model{
		viewport: vp,
		input:    ti,
		keys:     defaultKeyMap,
		submit:   submit,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case msg.String() == "enter":
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.appendLine("you", text)
				m.input.Reset()
				m.submit(text)
			}
			return m, nil
		}
	case replyMsg:
		m.appendLine("bot", msg.content)
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 5
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) appendLine(role, content string) {
	m.lines = append(m.lines, chatLine{role: role, content: content})

	var sb strings.Builder
	for _, line := range m.lines {
		style := botStyle
		if line.role == "you" {
			style = youStyle
		}
		sb.WriteString(style.Render(line.role+": ") + line.content)
		sb.WriteString("\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}
	header := headerStyle.Width(m.width).Render("persona-gateway console")
	chat := chatStyle.Width(m.width - 2).Render(m.viewport.View())
	input := inputStyle.Width(m.width - 2).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, chat, input)
}
