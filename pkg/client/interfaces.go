package client

import (
	"context"

	"github.com/aeolun/jellyterm/pkg/flow"
	"github.com/aeolun/jellyterm/pkg/models"
)

// ServerStore is the part of the state the server selection screen reads and
// deletes from
type ServerStore interface {
	// Live list of all servers, republished after every write
	Servers() *flow.State[[]models.Server]

	// One-shot reads
	GetAllServersSync(ctx context.Context) ([]models.Server, error)
	GetServerWithAddressesAndUsers(ctx context.Context, id string) (*models.ServerWithAddressesAndUsers, error)

	DeleteServer(ctx context.Context, id string) error
}

// Preferences holds application-level choices that outlive a screen
type Preferences interface {
	CurrentServer() string
	SetCurrentServer(id string) error
}

// StateInterface defines the interface for client state persistence
// This allows for mocking in tests while the real State implements all these methods
type StateInterface interface {
	ServerStore
	Preferences

	// Configuration
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	// Server registration
	InsertServer(ctx context.Context, server models.Server) error
	InsertServerAddress(ctx context.Context, address models.ServerAddress) error
	InsertUser(ctx context.Context, user models.User) error
	SetCurrentServerAddress(ctx context.Context, serverID, addressID string) error
	SetCurrentUser(ctx context.Context, serverID, userID string) error
	GetServerAddresses(ctx context.Context, serverID string) ([]models.ServerAddress, error)
	GetUsers(ctx context.Context, serverID string) ([]models.User, error)

	// Stable identifier sent to servers in the authorization header
	GetDeviceID() (string, error)

	// State directory
	GetStateDir() string

	// Close the state
	Close() error
}
