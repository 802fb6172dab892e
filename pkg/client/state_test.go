package client

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func openTestState(t *testing.T) *State {
	t.Helper()
	state, err := OpenState(filepath.Join(t.TempDir(), "state", "jellyterm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })
	return state
}

// seedServer stores a server with one address and one user, selected as current
func seedServer(t *testing.T, s StateInterface, id, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertServer(ctx, models.Server{
		ID:                     id,
		Name:                   name,
		CurrentServerAddressID: strPtr(id + "-addr"),
		CurrentUserID:          strPtr(id + "-user"),
	}))
	require.NoError(t, s.InsertServerAddress(ctx, models.ServerAddress{
		ID: id + "-addr", ServerID: id, Address: "http://" + name + ":8096",
	}))
	require.NoError(t, s.InsertUser(ctx, models.User{
		ID: id + "-user", ServerID: id, Name: "alice", AccessToken: strPtr(id + "-token"),
	}))
}

func TestOpenStateRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jellyterm.db")
	state, err := OpenState(path)
	require.NoError(t, err)
	require.NoError(t, state.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, schemaVersion(), version)

	// Reopening an up-to-date database is a no-op
	state, err = OpenState(path)
	require.NoError(t, err)
	state.Close()
}

func TestOpenStateRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jellyterm.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	db.Close()

	_, err = OpenState(path)
	assert.Error(t, err)
}

func TestStateConfig(t *testing.T) {
	state := openTestState(t)

	value, err := state.GetConfig("missing")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, state.SetConfig("k", "v1"))
	require.NoError(t, state.SetConfig("k", "v2"))
	value, err = state.GetConfig("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", value)
}

func TestStateCurrentServerPreference(t *testing.T) {
	state := openTestState(t)
	assert.Empty(t, state.CurrentServer())

	require.NoError(t, state.SetCurrentServer("srv-1"))
	assert.Equal(t, "srv-1", state.CurrentServer())
}

func TestStateDeviceIDIsStable(t *testing.T) {
	state := openTestState(t)

	first, err := state.GetDeviceID()
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := state.GetDeviceID()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStateGetAllServersSync(t *testing.T) {
	state := openTestState(t)
	ctx := context.Background()

	servers, err := state.GetAllServersSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, servers)

	seedServer(t, state, "b", "beta")
	seedServer(t, state, "a", "Alpha")

	servers, err = state.GetAllServersSync(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "Alpha", servers[0].Name)
	assert.Equal(t, "beta", servers[1].Name)
	assert.Equal(t, "a-addr", *servers[0].CurrentServerAddressID)
}

func TestStateGetServerWithAddressesAndUsers(t *testing.T) {
	state := openTestState(t)
	ctx := context.Background()
	seedServer(t, state, "srv", "home")
	require.NoError(t, state.InsertServerAddress(ctx, models.ServerAddress{
		ID: "srv-addr-2", ServerID: "srv", Address: "https://media.example.com",
	}))

	got, err := state.GetServerWithAddressesAndUsers(ctx, "srv")
	require.NoError(t, err)

	want := &models.ServerWithAddressesAndUsers{
		Server: models.Server{
			ID:                     "srv",
			Name:                   "home",
			CurrentServerAddressID: strPtr("srv-addr"),
			CurrentUserID:          strPtr("srv-user"),
		},
		Addresses: []models.ServerAddress{
			{ID: "srv-addr", ServerID: "srv", Address: "http://home:8096"},
			{ID: "srv-addr-2", ServerID: "srv", Address: "https://media.example.com"},
		},
		Users: []models.User{
			{ID: "srv-user", ServerID: "srv", Name: "alice", AccessToken: strPtr("srv-token")},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetServerWithAddressesAndUsers() mismatch (-want +got):\n%s", diff)
	}
}

func TestStateGetServerNotFound(t *testing.T) {
	state := openTestState(t)

	_, err := state.GetServerWithAddressesAndUsers(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestStateDeleteCascades(t *testing.T) {
	state := openTestState(t)
	ctx := context.Background()
	seedServer(t, state, "srv", "home")
	seedServer(t, state, "other", "other")

	require.NoError(t, state.DeleteServer(ctx, "srv"))

	_, err := state.GetServerWithAddressesAndUsers(ctx, "srv")
	assert.ErrorIs(t, err, ErrServerNotFound)

	addresses, err := state.GetServerAddresses(ctx, "srv")
	require.NoError(t, err)
	assert.Empty(t, addresses)
	users, err := state.GetUsers(ctx, "srv")
	require.NoError(t, err)
	assert.Empty(t, users)

	remaining, err := state.GetAllServersSync(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "other", remaining[0].ID)

	// Deleting an unknown id is not an error
	assert.NoError(t, state.DeleteServer(ctx, "srv"))
}

func TestStateSetCurrentSelection(t *testing.T) {
	state := openTestState(t)
	ctx := context.Background()
	seedServer(t, state, "srv", "home")

	require.NoError(t, state.SetCurrentServerAddress(ctx, "srv", "elsewhere"))
	require.NoError(t, state.SetCurrentUser(ctx, "srv", "bob"))

	got, err := state.GetServerWithAddressesAndUsers(ctx, "srv")
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", *got.Server.CurrentServerAddressID)
	assert.Equal(t, "bob", *got.Server.CurrentUserID)

	err = state.SetCurrentUser(ctx, "missing", "bob")
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestStateLiveServersFollowWrites(t *testing.T) {
	state := openTestState(t)
	ctx := context.Background()

	sub := state.Servers().Subscribe()
	defer sub.Close()
	assert.Empty(t, <-sub.C())

	seedServer(t, state, "srv", "home")
	servers := <-sub.C()
	require.Len(t, servers, 1)
	assert.Equal(t, "home", servers[0].Name)

	require.NoError(t, state.DeleteServer(ctx, "srv"))
	assert.Empty(t, <-sub.C())
}

func TestStateInsertAddressRequiresServer(t *testing.T) {
	state := openTestState(t)

	err := state.InsertServerAddress(context.Background(), models.ServerAddress{
		ID: "orphan", ServerID: "missing", Address: "http://x",
	})
	assert.Error(t, err)
}

func TestMockStateMatchesStateBehavior(t *testing.T) {
	for name, s := range map[string]StateInterface{
		"sqlite": openTestState(t),
		"mock":   NewMockState(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedServer(t, s, "srv", "home")

			record, err := s.GetServerWithAddressesAndUsers(ctx, "srv")
			require.NoError(t, err)
			addr, ok := record.CurrentAddress()
			require.True(t, ok)
			assert.Equal(t, "http://home:8096", addr.Address)

			require.NoError(t, s.DeleteServer(ctx, "srv"))
			_, err = s.GetServerWithAddressesAndUsers(ctx, "srv")
			assert.ErrorIs(t, err, ErrServerNotFound)
			assert.Empty(t, s.Servers().Value())
		})
	}
}
