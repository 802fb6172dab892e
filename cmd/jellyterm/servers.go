package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"

	"github.com/aeolun/jellyterm/pkg/api"
	"github.com/aeolun/jellyterm/pkg/client"
	"github.com/aeolun/jellyterm/pkg/discovery"
	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/aeolun/jellyterm/pkg/session"
)

// ServersCmd groups the saved-server commands
type ServersCmd struct {
	List   ServersListCmd   `cmd:"" default:"1" help:"List saved servers."`
	Add    ServersAddCmd    `cmd:"" help:"Save a server and sign-in."`
	Delete ServersDeleteCmd `cmd:"" help:"Remove a saved server."`
}

type ServersListCmd struct{}

func (c *ServersListCmd) Run(ctx context.Context, a *app) error {
	state, err := a.openState()
	if err != nil {
		return err
	}
	defer state.Close()

	servers, err := state.GetAllServersSync(ctx)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("No saved servers. Add one with: jellyterm servers add --address URL")
		return nil
	}

	current := state.CurrentServer()
	rows := make([][]string, 0, len(servers))
	for _, server := range servers {
		record, err := state.GetServerWithAddressesAndUsers(ctx, server.ID)
		if err != nil {
			return err
		}
		address, user := "-", "-"
		if addr, ok := record.CurrentAddress(); ok {
			address = addr.Address
		}
		if u, ok := record.CurrentUser(); ok {
			user = u.Name
		}
		marker := ""
		if server.ID == current {
			marker = "*"
		}
		rows = append(rows, []string{marker, server.ID, server.Name, address, user})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "ID", "NAME", "ADDRESS", "USER").
		Rows(rows...)
	fmt.Println(t)
	return nil
}

type ServersAddCmd struct {
	Address string `required:"" help:"Server URL, e.g. http://192.168.1.20:8096."`
	Name    string `help:"Display name. Asked from the server when empty."`
	ID      string `help:"Server id. Asked from the server when empty."`
	User    string `help:"User name to sign in as."`
	UserID  string `name:"user-id" help:"User id of the sign-in."`
	Token   string `help:"Access token of the sign-in." env:"JELLYTERM_ACCESS_TOKEN"`
}

func (c *ServersAddCmd) Run(ctx context.Context, a *app) error {
	state, err := a.openState()
	if err != nil {
		return err
	}
	defer state.Close()

	id, name := c.ID, c.Name
	if id == "" || name == "" {
		info, err := lookupServer(ctx, a, state, c.Address)
		if err != nil {
			a.logger.Printf("[DEBUG] Server lookup failed: %v", err)
		} else {
			if id == "" {
				id = info.ID
			}
			if name == "" {
				name = info.ServerName
			}
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	id = discovery.NormalizeID(id)
	if name == "" {
		name = c.Address
	}

	addressID := uuid.NewString()
	server := models.Server{ID: id, Name: name, CurrentServerAddressID: &addressID}
	if err := state.InsertServer(ctx, server); err != nil {
		return err
	}
	if err := state.InsertServerAddress(ctx, models.ServerAddress{ID: addressID, ServerID: id, Address: c.Address}); err != nil {
		return err
	}
	if err := state.SetCurrentServerAddress(ctx, id, addressID); err != nil {
		return err
	}

	if c.User != "" || c.UserID != "" {
		userID := c.UserID
		if userID == "" {
			userID = uuid.NewString()
		}
		user := models.User{ID: userID, ServerID: id, Name: c.User}
		if c.Token != "" {
			token := c.Token
			user.AccessToken = &token
		}
		if err := state.InsertUser(ctx, user); err != nil {
			return err
		}
		if err := state.SetCurrentUser(ctx, id, userID); err != nil {
			return err
		}
	}

	fmt.Printf("Saved %s (%s)\n", name, id)
	return nil
}

// lookupServer asks the server at address to describe itself
func lookupServer(ctx context.Context, a *app, state client.StateInterface, address string) (*api.PublicSystemInfo, error) {
	holder := session.NewHolder()
	holder.Set(session.Session{BaseURL: address})
	apiClient, err := newAPIClient(a.cfg, state, holder)
	if err != nil {
		return nil, err
	}
	return apiClient.GetPublicSystemInfo(ctx)
}

type ServersDeleteCmd struct {
	ID string `arg:"" help:"Id of the server to remove."`
}

func (c *ServersDeleteCmd) Run(ctx context.Context, a *app) error {
	state, err := a.openState()
	if err != nil {
		return err
	}
	defer state.Close()

	if _, err := state.GetServerWithAddressesAndUsers(ctx, c.ID); err != nil {
		if errors.Is(err, client.ErrServerNotFound) {
			return fmt.Errorf("no saved server with id %s", c.ID)
		}
		return err
	}
	if err := state.DeleteServer(ctx, c.ID); err != nil {
		return err
	}
	if state.CurrentServer() == c.ID {
		if err := state.SetCurrentServer(""); err != nil {
			return err
		}
	}
	fmt.Printf("Removed %s\n", c.ID)
	return nil
}
