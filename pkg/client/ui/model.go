package ui

import (
	"log"

	"github.com/aeolun/jellyterm/pkg/client/ui/modal"
	"github.com/aeolun/jellyterm/pkg/flow"
	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/aeolun/jellyterm/pkg/serverselect"
	"github.com/aeolun/jellyterm/pkg/session"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Pane identifies which list has the cursor
type Pane int

const (
	PaneStored Pane = iota
	PaneDiscovered
)

// UIStateMsg carries a new stored-servers state
type UIStateMsg struct {
	State serverselect.UIState
}

// DiscoveredMsg carries a new discovery state
type DiscoveredMsg struct {
	State serverselect.DiscoveredServersState
}

// ServersMsg carries the live list of saved servers
type ServersMsg struct {
	Servers []models.Server
}

// NavigateMsg is sent when the coordinator signals a connected server
type NavigateMsg struct {
	Navigate bool
}

// ErrorMsg carries a background failure to show the user
type ErrorMsg struct {
	Err error
}

// Model is the server selection screen
type Model struct {
	coord  *serverselect.Coordinator
	errs   <-chan error
	logger *log.Logger

	uiSub         *flow.Subscription[serverselect.UIState]
	discoveredSub *flow.Subscription[serverselect.DiscoveredServersState]
	serversSub    *flow.Subscription[[]models.Server]
	navigateSub   *flow.Subscription[bool]

	uiState    serverselect.UIState
	discovered serverselect.DiscoveredServersState
	servers    []models.Server

	pane             Pane
	storedCursor     int
	discoveredCursor int
	status           string

	spinner    spinner.Model
	modalStack modal.ModalStack
	width      int
	height     int

	connected bool
	session   session.Session
}

// NewModel creates the screen for coord. Failures reported on errs are shown
// in an error modal; errs may be nil.
func NewModel(coord *serverselect.Coordinator, errs <-chan error, logger *log.Logger) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return Model{
		coord:         coord,
		errs:          errs,
		logger:        logger,
		uiSub:         coord.UIState().Subscribe(),
		discoveredSub: coord.DiscoveredServersState().Subscribe(),
		serversSub:    coord.Servers().Subscribe(),
		navigateSub:   coord.NavigateToMain().Subscribe(),
		uiState:       serverselect.UIStateLoading{},
		discovered:    serverselect.DiscoveredLoading{},
		pane:          PaneStored,
		spinner:       s,
	}
}

// Init starts listening on every coordinator channel
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		listenFor(m.uiSub, func(s serverselect.UIState) tea.Msg { return UIStateMsg{State: s} }),
		listenFor(m.discoveredSub, func(s serverselect.DiscoveredServersState) tea.Msg { return DiscoveredMsg{State: s} }),
		listenFor(m.serversSub, func(s []models.Server) tea.Msg { return ServersMsg{Servers: s} }),
		listenFor(m.navigateSub, func(v bool) tea.Msg { return NavigateMsg{Navigate: v} }),
		listenForErrors(m.errs),
	)
}

// Result returns the session the user connected with, if any
func (m Model) Result() (session.Session, bool) {
	return m.session, m.connected
}

// Close detaches the model's subscriptions
func (m Model) Close() {
	m.uiSub.Close()
	m.discoveredSub.Close()
	m.serversSub.Close()
	m.navigateSub.Close()
}

func (m Model) logf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// listenFor waits for the next value on sub. Returns nil once the
// subscription is closed, which ends the listen loop.
func listenFor[T any](sub *flow.Subscription[T], wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case v, ok := <-sub.C():
			if !ok {
				return nil
			}
			return wrap(v)
		case <-sub.Done():
			return nil
		}
	}
}

func listenForErrors(errs <-chan error) tea.Cmd {
	if errs == nil {
		return nil
	}
	return func() tea.Msg {
		err, ok := <-errs
		if !ok {
			return nil
		}
		return ErrorMsg{Err: err}
	}
}

func (m Model) selectedStored() (models.Server, bool) {
	if m.storedCursor < 0 || m.storedCursor >= len(m.servers) {
		return models.Server{}, false
	}
	return m.servers[m.storedCursor], true
}

func (m Model) discoveredServers() []models.DiscoveredServer {
	if s, ok := m.discovered.(serverselect.DiscoveredServers); ok {
		return s.Servers
	}
	return nil
}

func (m Model) selectedDiscovered() (models.DiscoveredServer, bool) {
	servers := m.discoveredServers()
	if m.discoveredCursor < 0 || m.discoveredCursor >= len(servers) {
		return models.DiscoveredServer{}, false
	}
	return servers[m.discoveredCursor], true
}

func clampCursor(cursor, length int) int {
	if cursor >= length {
		cursor = length - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	return cursor
}

var keyBindings = []modal.KeyBinding{
	{Keys: "↑/↓ k/j", Description: "Move"},
	{Keys: "tab", Description: "Switch between saved and discovered"},
	{Keys: "enter", Description: "Connect to the saved server"},
	{Keys: "d", Description: "Remove the saved server"},
	{Keys: "?", Description: "Show this help"},
	{Keys: "q", Description: "Quit"},
}
