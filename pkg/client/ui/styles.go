package ui

import "github.com/charmbracelet/lipgloss"

var (
	PrimaryColor   = lipgloss.Color("#AA5CC3")
	SecondaryColor = lipgloss.Color("#00A4DC")
	MutedColor     = lipgloss.Color("240")
	ErrorColor     = lipgloss.Color("#FF5555")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor).
			Padding(0, 1)

	ActivePaneStyle = PaneStyle.
			BorderForeground(PrimaryColor)

	PaneTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(SecondaryColor).
			MarginBottom(1)

	ItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true)

	DetailStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	StatusStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Italic(true)

	HintStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)
)
