package ui

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/aeolun/jellyterm/pkg/client"
	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/aeolun/jellyterm/pkg/serverselect"
	"github.com/aeolun/jellyterm/pkg/session"
	tea "github.com/charmbracelet/bubbletea"
)

type testHarness struct {
	state *client.MockState
	coord *serverselect.Coordinator
	fatal chan error
}

// NewTestModel creates a Model over a mock store with no discovery
func NewTestModel(t *testing.T) (Model, *testHarness) {
	t.Helper()
	h := &testHarness{
		state: client.NewMockState(),
		fatal: make(chan error, 1),
	}
	logger := log.New(io.Discard, "", 0) // Discard logs in tests

	h.coord = serverselect.New(context.Background(), serverselect.Options{
		Store:   h.state,
		Prefs:   h.state,
		Session: session.NewHolder(),
		Logger:  logger,
		OnFatal: func(err error) { h.fatal <- err },
	})
	t.Cleanup(h.coord.Close)

	m := NewModel(h.coord, nil, logger)
	t.Cleanup(m.Close)
	return m, h
}

// SetupTestModelWithDimensions creates a test model with window dimensions set
func SetupTestModelWithDimensions(t *testing.T, width, height int) (Model, *testHarness) {
	m, h := NewTestModel(t)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return updated.(Model), h
}

// CreateTestServer stores a server with a usable address and user
func CreateTestServer(t *testing.T, state *client.MockState, id, name string) models.Server {
	t.Helper()
	ctx := context.Background()
	addressID, userID := id+"-addr", id+"-user"
	token := id + "-token"
	server := models.Server{ID: id, Name: name, CurrentServerAddressID: &addressID, CurrentUserID: &userID}

	if err := state.InsertServer(ctx, server); err != nil {
		t.Fatalf("InsertServer() error = %v", err)
	}
	if err := state.InsertServerAddress(ctx, models.ServerAddress{ID: addressID, ServerID: id, Address: "http://" + id + ":8096"}); err != nil {
		t.Fatalf("InsertServerAddress() error = %v", err)
	}
	if err := state.InsertUser(ctx, models.User{ID: userID, ServerID: id, Name: "alice", AccessToken: &token}); err != nil {
		t.Fatalf("InsertUser() error = %v", err)
	}
	return server
}

// withServers feeds a settled stored-servers state into the model
func withServers(m Model, servers ...models.Server) Model {
	updated, _ := m.Update(UIStateMsg{State: serverselect.UIStateNormal{Servers: servers}})
	return updated.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...string) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var updated tea.Model
		updated, cmd = m.Update(key(k))
		m = updated.(Model)
	}
	return m, cmd
}

// runCmd executes cmd and fails the test if it does not return in time
func runCmd(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command, got nil")
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("command did not return")
	}
	return nil
}

func isQuit(t *testing.T, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	_, ok := runCmd(t, cmd).(tea.QuitMsg)
	return ok
}
