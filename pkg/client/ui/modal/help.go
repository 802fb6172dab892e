package modal

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// KeyBinding is one row of the help modal
type KeyBinding struct {
	Keys        string
	Description string
}

// HelpModal lists the key bindings of the current screen
type HelpModal struct {
	bindings []KeyBinding
}

// NewHelpModal creates a help modal for bindings
func NewHelpModal(bindings []KeyBinding) *HelpModal {
	return &HelpModal{bindings: bindings}
}

// Type returns the modal type
func (m *HelpModal) Type() ModalType {
	return ModalHelp
}

// HandleKey closes the modal on the usual dismiss keys
func (m *HelpModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter", "?", "q":
		return true, nil, nil
	}
	return true, m, nil
}

// Render returns the modal content
func (m *HelpModal) Render(width, height int) string {
	primary := lipgloss.Color("#AA5CC3")

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(primary).
		MarginBottom(1)

	keyStyle := lipgloss.NewStyle().
		Foreground(primary).
		Bold(true)

	descStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	keyWidth := 0
	for _, b := range m.bindings {
		if len(b.Keys) > keyWidth {
			keyWidth = len(b.Keys)
		}
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("Keys") + "\n\n")
	for _, b := range m.bindings {
		content.WriteString(keyStyle.Render(fmt.Sprintf("%-*s", keyWidth, b.Keys)))
		content.WriteString("  " + descStyle.Render(b.Description) + "\n")
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primary).
		Padding(1, 2).
		Render(content.String())

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

// IsBlockingInput returns whether this modal blocks input to the main view
func (m *HelpModal) IsBlockingInput() bool {
	return true
}
