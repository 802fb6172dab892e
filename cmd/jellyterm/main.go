package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/aeolun/jellyterm/pkg/client"
	"github.com/aeolun/jellyterm/pkg/config"
)

var Version = "dev"

// CLI is the root command
type CLI struct {
	Config string `short:"c" help:"Config file path." type:"path" placeholder:"PATH"`
	Debug  bool   `short:"d" help:"Write debug output to stderr."`

	Select   SelectCmd   `cmd:"" default:"1" help:"Pick a saved server and connect to it."`
	Servers  ServersCmd  `cmd:"" help:"Manage saved servers."`
	Discover DiscoverCmd `cmd:"" help:"Scan the local network for servers."`
	Whoami   WhoamiCmd   `cmd:"" help:"Show who you are signed in as on the current server."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// app is what every command runs with
type app struct {
	cfg    config.TOMLConfig
	logger *log.Logger
	debug  bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kongCtx := kong.Parse(&cli,
		kong.Name("jellyterm"),
		kong.Description("A terminal client for Jellyfin servers."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configPath := cli.Config
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	a := &app{cfg: cfg, debug: cli.Debug}
	if cli.Debug {
		a.logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	} else {
		a.logger = log.New(io.Discard, "", 0)
	}

	if err := kongCtx.Run(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openState opens the saved-server database
func (a *app) openState() (*client.State, error) {
	state, err := client.OpenState(a.cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	state.SetLogger(a.logger)
	return state, nil
}

// fileLogger redirects logging to the configured log file. The terminal UI
// owns stdout and stderr while it runs.
func (a *app) fileLogger() (*log.Logger, func(), error) {
	path := a.cfg.Log.Path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), func() { f.Close() }, nil
}

// VersionCmd prints the version
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("jellyterm %s\n", Version)
	return nil
}
