package modal

import (
	"github.com/aeolun/jellyterm/pkg/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DeleteServerConfirmedMsg is sent when the user confirms removing a saved server
type DeleteServerConfirmedMsg struct {
	Server models.Server
}

// DeleteConfirmModal asks before a saved server is removed
type DeleteConfirmModal struct {
	server models.Server
	cursor int // 0 = Keep, 1 = Delete
}

// NewDeleteConfirmModal creates a confirmation for removing server
func NewDeleteConfirmModal(server models.Server) *DeleteConfirmModal {
	return &DeleteConfirmModal{
		server: server,
		cursor: 0,
	}
}

// Type returns the modal type
func (m *DeleteConfirmModal) Type() ModalType {
	return ModalDeleteConfirm
}

func (m *DeleteConfirmModal) confirm() tea.Cmd {
	server := m.server
	return func() tea.Msg {
		return DeleteServerConfirmedMsg{Server: server}
	}
}

// HandleKey processes keyboard input
func (m *DeleteConfirmModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "left", "h", "up", "k":
		m.cursor = 0
		return true, m, nil

	case "right", "l", "down", "j", "tab":
		m.cursor = 1
		return true, m, nil

	case "y":
		return true, nil, m.confirm()

	case "n", "esc":
		return true, nil, nil

	case "enter":
		if m.cursor == 1 {
			return true, nil, m.confirm()
		}
		return true, nil, nil

	default:
		// Consume all other keys
		return true, m, nil
	}
}

// Render returns the modal content
func (m *DeleteConfirmModal) Render(width, height int) string {
	warningColor := lipgloss.Color("#FF6B6B")

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(warningColor).
		MarginBottom(1).
		Align(lipgloss.Center)

	serverStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")).
		Bold(true)

	mutedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	buttonStyle := lipgloss.NewStyle().
		Padding(0, 2).
		Foreground(lipgloss.Color("252"))

	selectedStyle := buttonStyle.
		Background(warningColor).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true)

	name := m.server.Name
	if name == "" {
		name = m.server.ID
	}

	var content string
	content += titleStyle.Render("Remove server?") + "\n\n"
	content += serverStyle.Render(name) + "\n"
	content += mutedStyle.Render("Saved addresses and sign-ins for this server are removed too.") + "\n\n"

	keep, del := buttonStyle.Render("Keep"), buttonStyle.Render("Delete")
	if m.cursor == 0 {
		keep = selectedStyle.Render("Keep")
	} else {
		del = selectedStyle.Render("Delete")
	}
	content += lipgloss.JoinHorizontal(lipgloss.Top, keep, "  ", del) + "\n\n"
	content += mutedStyle.Render("[Y] Delete  [N/Esc] Keep  [←/→] Choose  [Enter] Confirm")

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(warningColor).
		Padding(1, 2)

	modalWidth := 60
	if width < modalWidth+4 {
		modalWidth = width - 4
	}

	box := borderStyle.Width(modalWidth - 4).Render(content)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		box,
	)
}

// IsBlockingInput returns whether this modal blocks input to the main view
func (m *DeleteConfirmModal) IsBlockingInput() bool {
	return true
}
