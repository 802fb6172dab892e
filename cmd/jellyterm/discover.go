package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// DiscoverCmd prints the servers that answer on the local network
type DiscoverCmd struct {
	Timeout time.Duration `help:"How long to scan. Defaults to the configured timeout."`
}

// Validate rejects timeouts the millisecond-based config cannot hold. Zero
// keeps the configured timeout.
func (c *DiscoverCmd) Validate() error {
	if c.Timeout != 0 && c.Timeout < time.Millisecond {
		return fmt.Errorf("--timeout must be at least 1ms, got %s", c.Timeout)
	}
	return nil
}

func (c *DiscoverCmd) Run(ctx context.Context, a *app) error {
	cfg := a.cfg.Discovery
	if c.Timeout > 0 {
		cfg.TimeoutMS = int(c.Timeout / time.Millisecond)
	}

	found, err := buildDiscoverer(cfg, a.logger).Discover(ctx)
	if err != nil {
		return err
	}

	var rows [][]string
	for server := range found {
		rows = append(rows, []string{server.ID, server.Name, server.Address})
	}
	if len(rows) == 0 {
		fmt.Println("No servers found")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "ADDRESS").
		Rows(rows...)
	fmt.Println(t)
	return nil
}
