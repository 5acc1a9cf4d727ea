package console

import "github.com/charmbracelet/lipgloss"

var (
	teal     = lipgloss.Color("#0d7377")
	offWhite = lipgloss.Color("#f8f7f4")

	headerStyle = lipgloss.NewStyle().
			Background(teal).
			Foreground(offWhite).
			Bold(true).
			Padding(0, 1)

	chatStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1)

	youStyle = lipgloss.NewStyle().
			Foreground(offWhite).
			Bold(true)

	botStyle = lipgloss.NewStyle().
			Foreground(teal).
			Bold(true)
)
