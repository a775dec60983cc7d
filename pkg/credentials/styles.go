package credentials

import "github.com/charmbracelet/lipgloss"

type theme struct {
	title lipgloss.Style
	hint  lipgloss.Style
	input lipgloss.Style
	err   lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		title: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("25")),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1),
		err: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
	}
}
