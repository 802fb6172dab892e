package serverselect

import (
	"fmt"

	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/gen2brain/beeep"
)

// Notifier tells the user about a newly discovered server
type Notifier interface {
	ServerDiscovered(server models.DiscoveredServer) error
}

// DesktopNotifier raises a desktop notification per discovered server
type DesktopNotifier struct {
	AppName string
}

// ServerDiscovered shows a notification naming the server and its address
func (n DesktopNotifier) ServerDiscovered(server models.DiscoveredServer) error {
	title := n.AppName
	if title == "" {
		title = "jellyterm"
	}
	name := server.Name
	if name == "" {
		name = server.ID
	}
	return beeep.Notify(title, fmt.Sprintf("Found %s at %s", name, server.Address), "")
}
