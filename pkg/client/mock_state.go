package client

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aeolun/jellyterm/pkg/flow"
	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/google/uuid"
)

// MockState is an in-memory test implementation of StateInterface
type MockState struct {
	mu sync.RWMutex

	// In-memory storage
	config    map[string]string
	servers   map[string]models.Server
	addresses map[string]models.ServerAddress
	users     map[string]models.User
	order     []string // insertion order of addresses and users
	live      *flow.State[[]models.Server]
	dir       string

	// Error injection
	getConfigErr  error
	setConfigErr  error
	getServersErr error
	getServerErr  error
	deleteErr     error

	deleted []string
}

// NewMockState creates a new mock state
func NewMockState() *MockState {
	return &MockState{
		config:    make(map[string]string),
		servers:   make(map[string]models.Server),
		addresses: make(map[string]models.ServerAddress),
		users:     make(map[string]models.User),
		live:      flow.NewState[[]models.Server]([]models.Server{}),
		dir:       "/tmp/mock-state",
	}
}

// GetConfig retrieves a configuration value
func (s *MockState) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getConfigErr != nil {
		return "", s.getConfigErr
	}

	return s.config[key], nil
}

// SetConfig stores a configuration value
func (s *MockState) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setConfigErr != nil {
		return s.setConfigErr
	}

	s.config[key] = value
	return nil
}

// CurrentServer returns the id of the last server connected to
func (s *MockState) CurrentServer() string {
	id, _ := s.GetConfig(configCurrentServer)
	return id
}

// SetCurrentServer stores the id of the server being connected to
func (s *MockState) SetCurrentServer(id string) error {
	return s.SetConfig(configCurrentServer, id)
}

// GetDeviceID returns a device id, generating one on first use
func (s *MockState) GetDeviceID() (string, error) {
	id, err := s.GetConfig(configDeviceID)
	if err != nil || id != "" {
		return id, err
	}
	id = uuid.NewString()
	return id, s.SetConfig(configDeviceID, id)
}

// Servers returns the live list of servers
func (s *MockState) Servers() *flow.State[[]models.Server] {
	return s.live
}

// GetAllServersSync returns all servers ordered by name
func (s *MockState) GetAllServersSync(ctx context.Context) ([]models.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getServersErr != nil {
		return nil, s.getServersErr
	}
	return s.sortedServersLocked(), nil
}

// GetServerWithAddressesAndUsers loads a server and its children
func (s *MockState) GetServerWithAddressesAndUsers(ctx context.Context, id string) (*models.ServerWithAddressesAndUsers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getServerErr != nil {
		return nil, s.getServerErr
	}

	server, ok := s.servers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, id)
	}

	return &models.ServerWithAddressesAndUsers{
		Server:    server,
		Addresses: s.addressesLocked(id),
		Users:     s.usersLocked(id),
	}, nil
}

// GetServerAddresses returns the addresses registered for a server
func (s *MockState) GetServerAddresses(ctx context.Context, serverID string) ([]models.ServerAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addressesLocked(serverID), nil
}

// GetUsers returns the users signed in on a server
func (s *MockState) GetUsers(ctx context.Context, serverID string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usersLocked(serverID), nil
}

// InsertServer creates or replaces a server
func (s *MockState) InsertServer(ctx context.Context, server models.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[server.ID] = server
	s.publishLocked()
	return nil
}

// InsertServerAddress creates or replaces an address
func (s *MockState) InsertServerAddress(ctx context.Context, address models.ServerAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.addresses[address.ID]; !exists {
		s.order = append(s.order, "a:"+address.ID)
	}
	s.addresses[address.ID] = address
	return nil
}

// InsertUser creates or replaces a user
func (s *MockState) InsertUser(ctx context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; !exists {
		s.order = append(s.order, "u:"+user.ID)
	}
	s.users[user.ID] = user
	return nil
}

// SetCurrentServerAddress changes which address a server is reached at
func (s *MockState) SetCurrentServerAddress(ctx context.Context, serverID, addressID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	server, ok := s.servers[serverID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	server.CurrentServerAddressID = &addressID
	s.servers[serverID] = server
	s.publishLocked()
	return nil
}

// SetCurrentUser changes which user a server is used as
func (s *MockState) SetCurrentUser(ctx context.Context, serverID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	server, ok := s.servers[serverID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	server.CurrentUserID = &userID
	s.servers[serverID] = server
	s.publishLocked()
	return nil
}

// DeleteServer removes a server together with its addresses and users
func (s *MockState) DeleteServer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}

	delete(s.servers, id)
	for addrID, addr := range s.addresses {
		if addr.ServerID == id {
			delete(s.addresses, addrID)
		}
	}
	for userID, user := range s.users {
		if user.ServerID == id {
			delete(s.users, userID)
		}
	}
	s.deleted = append(s.deleted, id)
	s.publishLocked()
	return nil
}

// GetStateDir returns the directory where state is stored
func (s *MockState) GetStateDir() string {
	return s.dir
}

// Close closes the mock state (no-op for in-memory)
func (s *MockState) Close() error {
	return nil
}

func (s *MockState) sortedServersLocked() []models.Server {
	servers := make([]models.Server, 0, len(s.servers))
	for _, server := range s.servers {
		servers = append(servers, server)
	}
	sort.Slice(servers, func(i, j int) bool {
		a, b := strings.ToLower(servers[i].Name), strings.ToLower(servers[j].Name)
		if a != b {
			return a < b
		}
		return servers[i].ID < servers[j].ID
	})
	return servers
}

func (s *MockState) addressesLocked(serverID string) []models.ServerAddress {
	result := []models.ServerAddress{}
	for _, id := range s.orderedIDsLocked("a:") {
		if addr, ok := s.addresses[id]; ok && addr.ServerID == serverID {
			result = append(result, addr)
		}
	}
	return result
}

func (s *MockState) usersLocked(serverID string) []models.User {
	result := []models.User{}
	for _, id := range s.orderedIDsLocked("u:") {
		if user, ok := s.users[id]; ok && user.ServerID == serverID {
			result = append(result, user)
		}
	}
	return result
}

// orderedIDsLocked returns the ids recorded under prefix in first-insert order
func (s *MockState) orderedIDsLocked(prefix string) []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, key := range s.order {
		id, ok := strings.CutPrefix(key, prefix)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func (s *MockState) publishLocked() {
	s.live.Set(s.sortedServersLocked())
}

// Test helpers

// SetGetConfigError sets an error to return from GetConfig()
func (s *MockState) SetGetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getConfigErr = err
}

// SetSetConfigError sets an error to return from SetConfig()
func (s *MockState) SetSetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConfigErr = err
}

// SetGetServersError sets an error to return from GetAllServersSync()
func (s *MockState) SetGetServersError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getServersErr = err
}

// SetGetServerError sets an error to return from GetServerWithAddressesAndUsers()
func (s *MockState) SetGetServerError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getServerErr = err
}

// SetDeleteError sets an error to return from DeleteServer()
func (s *MockState) SetDeleteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr = err
}

// DeletedIDs returns the ids passed to successful DeleteServer calls
func (s *MockState) DeletedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.deleted...)
}

// GetAllConfig returns all config (for testing)
func (s *MockState) GetAllConfig() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string)
	for k, v := range s.config {
		result[k] = v
	}
	return result
}

// Verify that MockState implements StateInterface
var _ StateInterface = (*MockState)(nil)

// Verify that State implements StateInterface
var _ StateInterface = (*State)(nil)
