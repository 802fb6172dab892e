package serverselect

import "github.com/aeolun/jellyterm/pkg/models"

// UIState is the stored-servers state of the screen
type UIState interface {
	isUIState()
}

// UIStateLoading is shown until the stored servers have been read
type UIStateLoading struct{}

// UIStateNormal carries the stored servers
type UIStateNormal struct {
	Servers []models.Server
}

// UIStateError carries user-facing messages for a failed load
type UIStateError struct {
	Messages []string
}

func (UIStateLoading) isUIState() {}
func (UIStateNormal) isUIState()  {}
func (UIStateError) isUIState()   {}

// DiscoveredServersState is the network discovery state of the screen.
// Subscribers buffer Options.MaxDiscovered lists (at least flow.DefaultBuffer).
// One that falls further behind skips the oldest lists in between but always
// ends on the latest, which holds every server found so far.
type DiscoveredServersState interface {
	isDiscoveredServersState()
}

// DiscoveredLoading is shown until the first server is discovered
type DiscoveredLoading struct{}

// DiscoveredServers carries every server discovered so far, in arrival order
type DiscoveredServers struct {
	Servers []models.DiscoveredServer
}

func (DiscoveredLoading) isDiscoveredServersState() {}
func (DiscoveredServers) isDiscoveredServersState() {}
