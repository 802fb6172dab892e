package modal

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrorModal displays one or more error lines that must be acknowledged
type ErrorModal struct {
	title    string
	messages []string
}

// NewErrorModal creates a new error modal
func NewErrorModal(title string, messages ...string) *ErrorModal {
	return &ErrorModal{
		title:    title,
		messages: messages,
	}
}

// Type returns the modal type
func (m *ErrorModal) Type() ModalType {
	return ModalError
}

// HandleKey processes keyboard input
func (m *ErrorModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", " ":
		return true, nil, nil
	}
	return true, m, nil
}

// Render returns the modal content
func (m *ErrorModal) Render(width, height int) string {
	errorColor := lipgloss.Color("#FF5555") // Red for errors

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(errorColor).
		MarginBottom(1).
		Align(lipgloss.Center)

	messageStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	hintStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	var content strings.Builder
	content.WriteString(titleStyle.Render(m.title) + "\n\n")
	for _, line := range m.messages {
		content.WriteString(messageStyle.Render(line) + "\n")
	}
	content.WriteString("\n" + hintStyle.Render("Press Enter or Esc to dismiss"))

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(errorColor).
		Padding(1, 2)

	modalWidth := 50
	if width < modalWidth+4 {
		modalWidth = width - 4
	}

	box := borderStyle.Width(modalWidth - 4).Render(content.String())

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		box,
	)
}

// IsBlockingInput returns whether this modal blocks input to the main view
func (m *ErrorModal) IsBlockingInput() bool {
	return true
}
