package main

import (
	"context"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aeolun/jellyterm/pkg/api"
	"github.com/aeolun/jellyterm/pkg/client"
	"github.com/aeolun/jellyterm/pkg/client/ui"
	"github.com/aeolun/jellyterm/pkg/config"
	"github.com/aeolun/jellyterm/pkg/discovery"
	"github.com/aeolun/jellyterm/pkg/serverselect"
	"github.com/aeolun/jellyterm/pkg/session"
)

// SelectCmd runs the server selection screen
type SelectCmd struct {
	NoDiscovery bool `help:"Do not scan the local network."`
}

func (c *SelectCmd) Run(ctx context.Context, a *app) error {
	logger, closeLog, err := a.fileLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	state, err := client.OpenState(a.cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer state.Close()
	state.SetLogger(logger)

	registry := prometheus.NewRegistry()
	if a.cfg.Metrics.ListenAddr != "" {
		startMetricsServer(ctx, a.cfg.Metrics.ListenAddr, registry, logger)
	}

	var discoverer discovery.Discoverer
	if !c.NoDiscovery {
		discoverer = buildDiscoverer(a.cfg.Discovery, logger)
	}
	var notifier serverselect.Notifier
	if a.cfg.Discovery.Notify {
		notifier = serverselect.DesktopNotifier{AppName: "jellyterm"}
	}

	errs := make(chan error, 16)
	fatal := make(chan error, 1)
	var program *tea.Program

	holder := session.NewHolder()
	// mDNS has no cap of its own, so leave room for it too
	maxDiscovered := 2 * a.cfg.Discovery.MaxServers
	coord := serverselect.New(ctx, serverselect.Options{
		Store:         state,
		Prefs:         state,
		Discoverer:    discoverer,
		Session:       holder,
		Logger:        logger,
		Metrics:       serverselect.NewMetrics(registry),
		Notifier:      notifier,
		MaxDiscovered: maxDiscovered,
		OnError: func(err error) {
			logger.Printf("[ERROR] %v", err)
			select {
			case errs <- err:
			default:
			}
		},
		OnFatal: func(err error) {
			logger.Printf("[ERROR] Fatal: %v", err)
			select {
			case fatal <- err:
			default:
			}
			program.Kill()
		},
	})
	defer coord.Close()

	model := ui.NewModel(coord, errs, logger)
	defer model.Close()

	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	final, runErr := program.Run()

	select {
	case err := <-fatal:
		return fmt.Errorf("server selection: %w", err)
	default:
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("terminal UI failed: %w", runErr)
	}

	result, ok := final.(ui.Model)
	if !ok {
		return nil
	}
	sess, connected := result.Result()
	if !connected {
		return nil
	}

	apiClient, err := newAPIClient(a.cfg, state, holder)
	if err != nil {
		return err
	}
	return printWhoami(ctx, apiClient, sess)
}

// buildDiscoverer combines the configured discovery sources
func buildDiscoverer(cfg config.DiscoverySection, logger *log.Logger) discovery.Discoverer {
	broadcast := discovery.NewBroadcast()
	broadcast.Port = cfg.BroadcastPort
	broadcast.Timeout = cfg.Timeout()
	broadcast.MaxServers = cfg.MaxServers
	broadcast.SetLogger(logger)

	sources := discovery.Multi{broadcast}
	if cfg.MDNSEnabled {
		mdns := discovery.NewMDNS(cfg.MDNSService)
		mdns.Timeout = cfg.Timeout()
		mdns.SetLogger(logger)
		sources = append(sources, mdns)
	}
	return sources
}

// newAPIClient creates a client identifying as this device
func newAPIClient(cfg config.TOMLConfig, state client.StateInterface, holder *session.Holder) (*api.Client, error) {
	deviceID, err := state.GetDeviceID()
	if err != nil {
		return nil, fmt.Errorf("failed to load device id: %w", err)
	}
	return api.NewClient(holder, api.ClientInfo{
		Client:   "jellyterm",
		Device:   cfg.Client.DeviceName,
		DeviceID: deviceID,
		Version:  Version,
	}), nil
}

func printWhoami(ctx context.Context, apiClient *api.Client, sess session.Session) error {
	user, err := apiClient.GetCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("connected to %s but could not load the user: %w", sess.BaseURL, err)
	}
	fmt.Printf("Connected to %s as %s\n", sess.BaseURL, user.Name)
	return nil
}
