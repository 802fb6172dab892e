package ui

import (
	"fmt"

	"github.com/aeolun/jellyterm/pkg/client/ui/modal"
	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/aeolun/jellyterm/pkg/serverselect"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case UIStateMsg:
		m.uiState = msg.State
		switch state := msg.State.(type) {
		case serverselect.UIStateNormal:
			m.servers = state.Servers
			m.storedCursor = clampCursor(m.storedCursor, len(m.servers))
		case serverselect.UIStateError:
			m.logf("[ERROR] Stored servers failed to load: %v", state.Messages)
			// Fall back to whatever the store's live list holds
			m.servers = m.coord.Servers().Value()
			m.storedCursor = clampCursor(m.storedCursor, len(m.servers))
		}
		return m, listenFor(m.uiSub, func(s serverselect.UIState) tea.Msg { return UIStateMsg{State: s} })

	case DiscoveredMsg:
		m.discovered = msg.State
		m.discoveredCursor = clampCursor(m.discoveredCursor, len(m.discoveredServers()))
		return m, listenFor(m.discoveredSub, func(s serverselect.DiscoveredServersState) tea.Msg { return DiscoveredMsg{State: s} })

	case ServersMsg:
		// The live list only matters once the initial load has settled,
		// successfully or not
		if _, loading := m.uiState.(serverselect.UIStateLoading); !loading {
			m.servers = msg.Servers
			m.storedCursor = clampCursor(m.storedCursor, len(m.servers))
		}
		return m, listenFor(m.serversSub, func(s []models.Server) tea.Msg { return ServersMsg{Servers: s} })

	case NavigateMsg:
		if !msg.Navigate {
			return m, listenFor(m.navigateSub, func(v bool) tea.Msg { return NavigateMsg{Navigate: v} })
		}
		if s, ok := m.coord.Session().Current(); ok {
			m.session = s
			m.connected = true
		}
		m.logf("[INFO] Navigating to main screen (connected=%v)", m.connected)
		return m, tea.Quit

	case ErrorMsg:
		m.modalStack.Push(modal.NewErrorModal("Something went wrong", msg.Err.Error()))
		return m, listenForErrors(m.errs)

	case modal.DeleteServerConfirmedMsg:
		m.status = fmt.Sprintf("Removing %s", displayName(msg.Server))
		m.coord.DeleteServer(msg.Server)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// ctrl+c always quits immediately
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	// Check if active modal handles this key
	if activeModal := m.modalStack.Top(); activeModal != nil {
		handled, newModal, cmd := activeModal.HandleKey(msg)

		if newModal == nil {
			m.modalStack.Pop()
		} else if newModal.Type() != activeModal.Type() {
			m.modalStack.Pop()
			m.modalStack.Push(newModal)
		}

		if handled {
			return m, cmd
		}
		if activeModal.IsBlockingInput() {
			return m, nil
		}
	}

	switch key {
	case "q", "esc":
		return m, tea.Quit

	case "?":
		m.modalStack.Push(modal.NewHelpModal(keyBindings))
		return m, nil

	case "tab", "shift+tab":
		if m.pane == PaneStored {
			m.pane = PaneDiscovered
		} else {
			m.pane = PaneStored
		}
		return m, nil

	case "up", "k":
		if m.pane == PaneStored {
			m.storedCursor = clampCursor(m.storedCursor-1, len(m.servers))
		} else {
			m.discoveredCursor = clampCursor(m.discoveredCursor-1, len(m.discoveredServers()))
		}
		return m, nil

	case "down", "j":
		if m.pane == PaneStored {
			m.storedCursor = clampCursor(m.storedCursor+1, len(m.servers))
		} else {
			m.discoveredCursor = clampCursor(m.discoveredCursor+1, len(m.discoveredServers()))
		}
		return m, nil

	case "enter":
		return m.handleEnter()

	case "d", "delete":
		if m.pane != PaneStored {
			return m, nil
		}
		if server, ok := m.selectedStored(); ok {
			m.modalStack.Push(modal.NewDeleteConfirmModal(server))
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	if m.pane == PaneDiscovered {
		if server, ok := m.selectedDiscovered(); ok {
			m.status = fmt.Sprintf("Sign in first: jellyterm servers add --address %s", server.Address)
		}
		return m, nil
	}

	server, ok := m.selectedStored()
	if !ok {
		return m, nil
	}
	m.status = fmt.Sprintf("Connecting to %s", displayName(server))
	m.logf("[DEBUG] Connect requested for %s", server.ID)
	m.coord.ConnectToServer(server)
	return m, nil
}

func displayName(server models.Server) string {
	if server.Name != "" {
		return server.Name
	}
	return server.ID
}
