package ui

import (
	"strings"

	"github.com/aeolun/jellyterm/pkg/serverselect"
	"github.com/charmbracelet/lipgloss"
)

// View renders the current view
func (m Model) View() string {
	// Don't render until we have dimensions
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	// Modals replace the screen while open
	if activeModal := m.modalStack.Top(); activeModal != nil {
		return activeModal.Render(m.width, m.height)
	}
	return m.renderServerSelect()
}

func (m Model) renderServerSelect() string {
	paneWidth := (m.width - 4) / 2
	if paneWidth < 24 {
		paneWidth = 24
	}
	paneHeight := m.height - 6
	if paneHeight < 5 {
		paneHeight = 5
	}

	stored := m.paneStyle(PaneStored).
		Width(paneWidth).
		Height(paneHeight).
		Render(m.renderStoredPane())
	discovered := m.paneStyle(PaneDiscovered).
		Width(paneWidth).
		Height(paneHeight).
		Render(m.renderDiscoveredPane())

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Select a server") + "\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, stored, " ", discovered) + "\n")
	if m.status != "" {
		b.WriteString(StatusStyle.Render(m.status) + "\n")
	}
	b.WriteString(HintStyle.Render("[↑/↓] Move  [Tab] Switch  [Enter] Connect  [D] Remove  [?] Help  [Q] Quit"))
	return b.String()
}

func (m Model) paneStyle(p Pane) lipgloss.Style {
	if m.pane == p {
		return ActivePaneStyle
	}
	return PaneStyle
}

func (m Model) renderStoredPane() string {
	var b strings.Builder
	b.WriteString(PaneTitleStyle.Render("Saved servers") + "\n")

	switch state := m.uiState.(type) {
	case serverselect.UIStateLoading:
		b.WriteString(m.spinner.View() + " " + DetailStyle.Render("Loading saved servers"))
	case serverselect.UIStateError:
		for _, line := range state.Messages {
			b.WriteString(ErrorStyle.Render(line) + "\n")
		}
		if len(m.servers) > 0 {
			b.WriteString("\n")
			m.renderStoredList(&b)
		}
	case serverselect.UIStateNormal:
		if len(m.servers) == 0 {
			b.WriteString(DetailStyle.Render("No saved servers yet"))
			break
		}
		m.renderStoredList(&b)
	}
	return b.String()
}

func (m Model) renderStoredList(b *strings.Builder) {
	for i, server := range m.servers {
		line := displayName(server)
		if i == m.storedCursor && m.pane == PaneStored {
			b.WriteString(SelectedItemStyle.Render("→ "+line) + "\n")
		} else {
			b.WriteString(ItemStyle.Render("  "+line) + "\n")
		}
	}
}

func (m Model) renderDiscoveredPane() string {
	var b strings.Builder
	b.WriteString(PaneTitleStyle.Render("On this network") + "\n")

	switch state := m.discovered.(type) {
	case serverselect.DiscoveredLoading:
		b.WriteString(m.spinner.View() + " " + DetailStyle.Render("Looking for servers"))
	case serverselect.DiscoveredServers:
		for i, server := range state.Servers {
			name := server.Name
			if name == "" {
				name = server.ID
			}
			if i == m.discoveredCursor && m.pane == PaneDiscovered {
				b.WriteString(SelectedItemStyle.Render("→ "+name) + "\n")
			} else {
				b.WriteString(ItemStyle.Render("  "+name) + "\n")
			}
			b.WriteString(DetailStyle.Render("    "+server.Address) + "\n")
		}
	}
	return b.String()
}
