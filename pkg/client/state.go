package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aeolun/jellyterm/pkg/flow"
	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrServerNotFound indicates no server row exists for the given id.
	ErrServerNotFound = errors.New("server not found")
)

const (
	configCurrentServer = "current_server"
	configDeviceID      = "device_id"
)

// State manages client-side persistent state
type State struct {
	db      *sql.DB
	dir     string // Directory where state is stored
	servers *flow.State[[]models.Server]
	logger  *log.Logger
}

// OpenState opens or creates the client state database
func OpenState(path string) (*State, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Single connection keeps the per-connection pragmas below in effect
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode = WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout = 5000", "set busy timeout"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	state := &State{
		db:      db,
		dir:     dir,
		servers: flow.NewState[[]models.Server](nil),
	}

	if err := state.publishServers(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load servers: %w", err)
	}

	return state, nil
}

// SetLogger sets a logger for state events
func (s *State) SetLogger(logger *log.Logger) {
	s.logger = logger
}

func (s *State) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Close closes the state database
func (s *State) Close() error {
	return s.db.Close()
}

// GetConfig retrieves a configuration value
func (s *State) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM Config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig stores a configuration value
func (s *State) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO Config (key, value) VALUES (?, ?)
	`, key, value)
	return err
}

// CurrentServer returns the id of the last server connected to
func (s *State) CurrentServer() string {
	id, _ := s.GetConfig(configCurrentServer)
	return id
}

// SetCurrentServer stores the id of the server being connected to
func (s *State) SetCurrentServer(id string) error {
	return s.SetConfig(configCurrentServer, id)
}

// GetDeviceID returns the device id, generating and storing one on first use
func (s *State) GetDeviceID() (string, error) {
	id, err := s.GetConfig(configDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.SetConfig(configDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Servers returns the live list of servers
func (s *State) Servers() *flow.State[[]models.Server] {
	return s.servers
}

// GetAllServersSync reads every server ordered by name
func (s *State) GetAllServersSync(ctx context.Context) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, current_server_address_id, current_user_id
		FROM servers
		ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// GetServerWithAddressesAndUsers loads a server and its children.
// Returns ErrServerNotFound if the server does not exist.
func (s *State) GetServerWithAddressesAndUsers(ctx context.Context, id string) (*models.ServerWithAddressesAndUsers, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, current_server_address_id, current_user_id
		FROM servers
		WHERE id = ?
	`, id)
	server, err := scanServer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	addresses, err := s.GetServerAddresses(ctx, id)
	if err != nil {
		return nil, err
	}
	users, err := s.GetUsers(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.ServerWithAddressesAndUsers{
		Server:    server,
		Addresses: addresses,
		Users:     users,
	}, nil
}

// GetServerAddresses returns the addresses registered for a server
func (s *State) GetServerAddresses(ctx context.Context, serverID string) ([]models.ServerAddress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server_id, address
		FROM server_addresses
		WHERE server_id = ?
		ORDER BY rowid
	`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := []models.ServerAddress{}
	for rows.Next() {
		var addr models.ServerAddress
		if err := rows.Scan(&addr.ID, &addr.ServerID, &addr.Address); err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// GetUsers returns the users signed in on a server
func (s *State) GetUsers(ctx context.Context, serverID string) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server_id, name, access_token
		FROM users
		WHERE server_id = ?
		ORDER BY rowid
	`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		var token sql.NullString
		if err := rows.Scan(&user.ID, &user.ServerID, &user.Name, &token); err != nil {
			return nil, err
		}
		if token.Valid {
			user.AccessToken = &token.String
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// InsertServer creates or replaces a server row. Existing addresses and
// users are kept.
func (s *State) InsertServer(ctx context.Context, server models.Server) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (id, name, current_server_address_id, current_user_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			current_server_address_id = excluded.current_server_address_id,
			current_user_id = excluded.current_user_id
	`, server.ID, server.Name, server.CurrentServerAddressID, server.CurrentUserID)
	if err != nil {
		return fmt.Errorf("insert server %s: %w", server.ID, err)
	}
	return s.publishServers(ctx)
}

// InsertServerAddress creates or replaces an address
func (s *State) InsertServerAddress(ctx context.Context, address models.ServerAddress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_addresses (id, server_id, address)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET server_id = excluded.server_id, address = excluded.address
	`, address.ID, address.ServerID, address.Address)
	if err != nil {
		return fmt.Errorf("insert address %s: %w", address.ID, err)
	}
	return nil
}

// InsertUser creates or replaces a user
func (s *State) InsertUser(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, server_id, name, access_token)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			server_id = excluded.server_id,
			name = excluded.name,
			access_token = excluded.access_token
	`, user.ID, user.ServerID, user.Name, user.AccessToken)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", user.ID, err)
	}
	return nil
}

// SetCurrentServerAddress changes which address a server is reached at
func (s *State) SetCurrentServerAddress(ctx context.Context, serverID, addressID string) error {
	return s.updateServerColumn(ctx, "current_server_address_id", serverID, addressID)
}

// SetCurrentUser changes which user a server is used as
func (s *State) SetCurrentUser(ctx context.Context, serverID, userID string) error {
	return s.updateServerColumn(ctx, "current_user_id", serverID, userID)
}

func (s *State) updateServerColumn(ctx context.Context, column, serverID, value string) error {
	// column is one of two constants above, never user input
	res, err := s.db.ExecContext(ctx, "UPDATE servers SET "+column+" = ? WHERE id = ?", value, serverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	return s.publishServers(ctx)
}

// DeleteServer removes a server together with its addresses and users
func (s *State) DeleteServer(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM servers WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete server %s: %w", id, err)
	}
	return s.publishServers(ctx)
}

// GetStateDir returns the directory where state is stored
func (s *State) GetStateDir() string {
	return s.dir
}

// publishServers refreshes the live server list
func (s *State) publishServers(ctx context.Context) error {
	servers, err := s.GetAllServersSync(ctx)
	if err != nil {
		s.logf("[ERROR] Failed to refresh server list: %v", err)
		return err
	}
	s.servers.Set(servers)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (models.Server, error) {
	var server models.Server
	var addressID, userID sql.NullString
	if err := row.Scan(&server.ID, &server.Name, &addressID, &userID); err != nil {
		return models.Server{}, err
	}
	if addressID.Valid {
		server.CurrentServerAddressID = &addressID.String
	}
	if userID.Valid {
		server.CurrentUserID = &userID.String
	}
	return server, nil
}
