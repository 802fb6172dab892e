// Package serverselect holds the state of the server selection screen: the
// stored servers, the servers found on the local network, and the signal to
// move on once a server has been connected to.
package serverselect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aeolun/jellyterm/pkg/client"
	"github.com/aeolun/jellyterm/pkg/discovery"
	"github.com/aeolun/jellyterm/pkg/flow"
	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/aeolun/jellyterm/pkg/session"
)

// Options are the collaborators of a Coordinator
type Options struct {
	Store      client.ServerStore
	Prefs      client.Preferences
	Discoverer discovery.Discoverer
	Session    *session.Holder

	// Optional
	Logger   *log.Logger
	Metrics  *Metrics
	Notifier Notifier

	// MaxDiscovered is the number of servers a scan is expected to yield.
	// DiscoveredServersState buffers enough lists for a subscriber to see
	// every one of them without reading in between. Zero uses flow.DefaultBuffer.
	MaxDiscovered int

	// OnError receives store and discovery failures. Defaults to logging.
	OnError func(error)
	// OnFatal receives invariant violations from ConnectToServer. Defaults
	// to panicking, which takes the process down.
	OnFatal func(error)
}

// Coordinator drives the server selection screen. All background work is
// bound to the context given to New and stops on Close.
type Coordinator struct {
	store      client.ServerStore
	prefs      client.Preferences
	discoverer discovery.Discoverer
	session    *session.Holder
	logger     *log.Logger
	metrics    *Metrics
	notifier   Notifier
	onError    func(error)
	onFatal    func(error)

	uiState         *flow.State[UIState]
	discoveredState *flow.State[DiscoveredServersState]
	navigateToMain  *flow.Event[bool]

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates the coordinator and starts loading stored servers and
// discovering servers on the network, concurrently
func New(ctx context.Context, opts Options) *Coordinator {
	ctx, cancel := context.WithCancel(ctx)

	c := &Coordinator{
		store:           opts.Store,
		prefs:           opts.Prefs,
		discoverer:      opts.Discoverer,
		session:         opts.Session,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		notifier:        opts.Notifier,
		onError:         opts.OnError,
		onFatal:         opts.OnFatal,
		uiState:         flow.NewState[UIState](UIStateLoading{}),
		discoveredState: flow.NewStateWithBuffer[DiscoveredServersState](DiscoveredLoading{}, max(flow.DefaultBuffer, opts.MaxDiscovered+1)),
		navigateToMain:  flow.NewEvent[bool](),
		ctx:             ctx,
		cancel:          cancel,
	}
	if c.session == nil {
		c.session = session.NewHolder()
	}
	if c.onError == nil {
		c.onError = func(err error) {
			c.logf("[ERROR] %v", err)
		}
	}
	if c.onFatal == nil {
		c.onFatal = func(err error) {
			panic(fmt.Sprintf("server selection invariant violated: %v", err))
		}
	}

	c.launch(c.loadServers)
	if c.discoverer != nil {
		c.launch(c.discoverServers)
	}

	return c
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// launch runs fn in the background unless the coordinator is closed
func (c *Coordinator) launch(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// Close cancels all background work and waits for it to stop
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// UIState is the stored-servers state. Starts as UIStateLoading.
func (c *Coordinator) UIState() *flow.State[UIState] {
	return c.uiState
}

// DiscoveredServersState is the discovery state. Starts as DiscoveredLoading.
func (c *Coordinator) DiscoveredServersState() *flow.State[DiscoveredServersState] {
	return c.discoveredState
}

// NavigateToMain fires true once a server has been connected to
func (c *Coordinator) NavigateToMain() *flow.Event[bool] {
	return c.navigateToMain
}

// Servers is the store's live server list, without loading or error states
func (c *Coordinator) Servers() *flow.State[[]models.Server] {
	return c.store.Servers()
}

// Session is the holder ConnectToServer writes to
func (c *Coordinator) Session() *session.Holder {
	return c.session
}

func (c *Coordinator) loadServers(ctx context.Context) {
	start := time.Now()
	servers, err := c.store.GetAllServersSync(ctx)
	c.metrics.observeLoad(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.uiState.Set(UIStateError{Messages: []string{"Could not load saved servers", err.Error()}})
		c.onError(fmt.Errorf("load servers: %w", err))
		return
	}

	c.logf("[DEBUG] Loaded %d stored servers", len(servers))
	c.uiState.Set(UIStateNormal{Servers: servers})
}

func (c *Coordinator) discoverServers(ctx context.Context) {
	found, err := c.discoverer.Discover(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.onError(fmt.Errorf("discover servers: %w", err))
		}
		return
	}

	var discovered []models.DiscoveredServer
	for {
		var server models.DiscoveredServer
		select {
		case <-ctx.Done():
			return
		case s, ok := <-found:
			if !ok {
				return
			}
			server = s
		}

		c.metrics.recordDiscovered()
		c.logf("[DEBUG] Discovered %s (%s) at %s", server.Name, server.ID, server.Address)
		if c.notifier != nil {
			if err := c.notifier.ServerDiscovered(server); err != nil {
				c.logf("[DEBUG] Discovery notification failed: %v", err)
			}
		}

		discovered = append(discovered, server)
		snapshot := make([]models.DiscoveredServer, len(discovered))
		copy(snapshot, discovered)
		c.discoveredState.Set(DiscoveredServers{Servers: snapshot})
	}
}

// DeleteServer removes the server from the store in the background. The
// outcome is not reported back; watch Servers for the change.
func (c *Coordinator) DeleteServer(server models.Server) {
	c.launch(func(ctx context.Context) {
		if err := c.Delete(ctx, server); err != nil && ctx.Err() == nil {
			c.onError(err)
		}
	})
}

// Delete removes the server from the store and reports the outcome
func (c *Coordinator) Delete(ctx context.Context, server models.Server) error {
	err := c.store.DeleteServer(ctx, server.ID)
	c.metrics.recordDelete(err)
	if err != nil {
		return fmt.Errorf("delete server %s: %w", server.ID, err)
	}
	c.logf("[INFO] Deleted server %s (%s)", server.Name, server.ID)
	return nil
}

// ConnectToServer makes the server the active session in the background and
// fires NavigateToMain on success. A server without a usable address or user
// is silently ignored. A server missing from the store is an invariant
// violation and goes to OnFatal.
func (c *Coordinator) ConnectToServer(server models.Server) {
	c.launch(func(ctx context.Context) {
		_, err := c.Connect(ctx, server)
		switch {
		case err == nil:
		case errors.Is(err, client.ErrServerNotFound):
			c.onFatal(err)
		case ctx.Err() == nil:
			c.onError(err)
		}
	})
}

// Connect is ConnectToServer with an explicit outcome: true when the session
// was set and navigation fired, false with a nil error when the server has
// no usable address or user. The current address and user ids are taken from
// server, not from the stored row.
func (c *Coordinator) Connect(ctx context.Context, server models.Server) (bool, error) {
	record, err := c.store.GetServerWithAddressesAndUsers(ctx, server.ID)
	if err != nil {
		if errors.Is(err, client.ErrServerNotFound) {
			c.metrics.recordConnect(ConnectResultMissing)
		} else {
			c.metrics.recordConnect(ConnectResultError)
		}
		return false, fmt.Errorf("connect to %s: %w", server.ID, err)
	}

	// The selection comes from the server as listed; the record only
	// supplies the addresses and users to pick from
	address, ok := record.AddressByID(server.CurrentServerAddressID)
	if !ok {
		c.metrics.recordConnect(ConnectResultIncomplete)
		c.logf("[DEBUG] Server %s has no current address, not connecting", server.ID)
		return false, nil
	}
	user, ok := record.UserByID(server.CurrentUserID)
	if !ok {
		c.metrics.recordConnect(ConnectResultIncomplete)
		c.logf("[DEBUG] Server %s has no current user, not connecting", server.ID)
		return false, nil
	}

	token := ""
	if user.AccessToken != nil {
		token = *user.AccessToken
	}
	c.session.Set(session.Session{
		BaseURL:     address.Address,
		AccessToken: token,
		UserID:      user.ID,
	})

	if err := c.prefs.SetCurrentServer(server.ID); err != nil {
		c.metrics.recordConnect(ConnectResultError)
		return false, fmt.Errorf("connect to %s: failed to save current server: %w", server.ID, err)
	}

	c.metrics.recordConnect(ConnectResultConnected)
	c.logf("[INFO] Connected to %s at %s as %s", server.Name, address.Address, user.Name)

	if err := c.navigateToMain.Emit(ctx, true); err != nil {
		return true, err
	}
	return true, nil
}
