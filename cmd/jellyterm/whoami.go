package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aeolun/jellyterm/pkg/session"
)

// WhoamiCmd checks the sign-in of the current server
type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx context.Context, a *app) error {
	state, err := a.openState()
	if err != nil {
		return err
	}
	defer state.Close()

	id := state.CurrentServer()
	if id == "" {
		return errors.New("no current server, pick one with: jellyterm select")
	}

	record, err := state.GetServerWithAddressesAndUsers(ctx, id)
	if err != nil {
		return err
	}
	address, ok := record.CurrentAddress()
	if !ok {
		return fmt.Errorf("server %s has no current address", id)
	}
	user, ok := record.CurrentUser()
	if !ok {
		return fmt.Errorf("server %s has no current user", id)
	}

	sess := session.Session{BaseURL: address.Address, UserID: user.ID}
	if user.AccessToken != nil {
		sess.AccessToken = *user.AccessToken
	}
	holder := session.NewHolder()
	holder.Set(sess)

	apiClient, err := newAPIClient(a.cfg, state, holder)
	if err != nil {
		return err
	}
	if info, err := apiClient.GetPublicSystemInfo(ctx); err == nil {
		fmt.Printf("%s (Jellyfin %s)\n", info.ServerName, info.Version)
	}
	return printWhoami(ctx, apiClient, sess)
}
