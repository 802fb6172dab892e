package serverselect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/aeolun/jellyterm/pkg/client"
	"github.com/aeolun/jellyterm/pkg/discovery"
	"github.com/aeolun/jellyterm/pkg/flow"
	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/aeolun/jellyterm/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func strPtr(s string) *string { return &s }

var testLogger = log.New(io.Discard, "", 0)

// feedDiscoverer hands out a channel the test writes discovery events to
type feedDiscoverer struct {
	ch chan models.DiscoveredServer
}

func newFeedDiscoverer() *feedDiscoverer {
	return &feedDiscoverer{ch: make(chan models.DiscoveredServer)}
}

func (f *feedDiscoverer) Discover(ctx context.Context) (<-chan models.DiscoveredServer, error) {
	return f.ch, nil
}

// gatedStore blocks GetAllServersSync until release is closed
type gatedStore struct {
	*client.MockState
	release chan struct{}
}

func (g *gatedStore) GetAllServersSync(ctx context.Context) ([]models.Server, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MockState.GetAllServersSync(ctx)
}

type recordingNotifier struct {
	mu     sync.Mutex
	seen   []models.DiscoveredServer
	failOn string
}

func (n *recordingNotifier) ServerDiscovered(server models.DiscoveredServer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, server)
	if server.ID == n.failOn {
		return errors.New("no notification daemon")
	}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}

// addServer stores a server. Empty addressID or userID leave that selection unset;
// a selection id that does not match the stored child simulates a dangling reference.
func addServer(t *testing.T, s *client.MockState, id, addressID, userID string) models.Server {
	t.Helper()
	ctx := context.Background()
	server := models.Server{ID: id, Name: "server " + id}
	if addressID != "" {
		server.CurrentServerAddressID = strPtr(addressID)
	}
	if userID != "" {
		server.CurrentUserID = strPtr(userID)
	}
	require.NoError(t, s.InsertServer(ctx, server))
	require.NoError(t, s.InsertServerAddress(ctx, models.ServerAddress{
		ID: id + "-addr", ServerID: id, Address: "http://" + id + ":8096",
	}))
	require.NoError(t, s.InsertUser(ctx, models.User{
		ID: id + "-user", ServerID: id, Name: "alice", AccessToken: strPtr(id + "-token"),
	}))
	return server
}

func next[T any](t *testing.T, sub *flow.Subscription[T]) T {
	t.Helper()
	select {
	case v := <-sub.C():
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
	}
	var zero T
	return zero
}

func assertNoEmission[T any](t *testing.T, sub *flow.Subscription[T]) {
	t.Helper()
	select {
	case v := <-sub.C():
		t.Fatalf("unexpected emission %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

type fixture struct {
	store    *client.MockState
	holder   *session.Holder
	feed     *feedDiscoverer
	fatal    chan error
	errs     chan error
	registry *prometheus.Registry
	metrics  *Metrics
}

func newFixture() *fixture {
	registry := prometheus.NewRegistry()
	return &fixture{
		store:    client.NewMockState(),
		holder:   session.NewHolder(),
		feed:     newFeedDiscoverer(),
		fatal:    make(chan error, 1),
		errs:     make(chan error, 8),
		registry: registry,
		metrics:  NewMetrics(registry),
	}
}

func (f *fixture) options(store client.ServerStore) Options {
	return Options{
		Store:      store,
		Prefs:      f.store,
		Discoverer: f.feed,
		Session:    f.holder,
		Logger:     testLogger,
		Metrics:    f.metrics,
		OnError:    func(err error) { f.errs <- err },
		OnFatal:    func(err error) { f.fatal <- err },
	}
}

func (f *fixture) start(t *testing.T) *Coordinator {
	t.Helper()
	c := New(context.Background(), f.options(f.store))
	t.Cleanup(c.Close)
	return c
}

func TestLoadsStoredServersAfterLoading(t *testing.T) {
	f := newFixture()
	for _, id := range []string{"a", "b", "c"} {
		addServer(t, f.store, id, id+"-addr", id+"-user")
	}
	gated := &gatedStore{MockState: f.store, release: make(chan struct{})}

	c := New(context.Background(), f.options(gated))
	defer c.Close()

	sub := c.UIState().Subscribe()
	defer sub.Close()

	assert.Equal(t, UIStateLoading{}, next(t, sub))
	close(gated.release)

	state := next(t, sub)
	normal, ok := state.(UIStateNormal)
	require.True(t, ok, "state = %T, want UIStateNormal", state)
	require.Len(t, normal.Servers, 3)
	assert.Equal(t, "a", normal.Servers[0].ID)

	assertNoEmission(t, sub)
	assert.Equal(t, uint64(1), loadSamples(t, f))
}

// loadSamples returns how many loads the histogram observed
func loadSamples(t *testing.T, f *fixture) uint64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "jellyterm_stored_servers_load_seconds" {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestLoadFailureEmitsError(t *testing.T) {
	f := newFixture()
	f.store.SetGetServersError(errors.New("disk I/O error"))

	c := f.start(t)
	sub := c.UIState().Subscribe()
	defer sub.Close()

	var state UIState
	for state = next(t, sub); state == (UIStateLoading{}); state = next(t, sub) {
	}
	errState, ok := state.(UIStateError)
	require.True(t, ok, "state = %T, want UIStateError", state)
	assert.Contains(t, errState.Messages, "disk I/O error")

	err := <-f.errs
	assert.ErrorContains(t, err, "load servers")
}

func TestDiscoveryAccumulatesInArrivalOrder(t *testing.T) {
	f := newFixture()
	notifier := &recordingNotifier{failOn: "b"}
	opts := f.options(f.store)
	opts.Notifier = notifier
	c := New(context.Background(), opts)
	defer c.Close()

	sub := c.DiscoveredServersState().Subscribe()
	defer sub.Close()
	assert.Equal(t, DiscoveredLoading{}, next(t, sub))

	a := models.DiscoveredServer{ID: "a", Name: "A", Address: "http://a"}
	b := models.DiscoveredServer{ID: "b", Name: "B", Address: "http://b"}
	cc := models.DiscoveredServer{ID: "c", Name: "C", Address: "http://c"}

	f.feed.ch <- a
	assert.Equal(t, DiscoveredServers{Servers: []models.DiscoveredServer{a}}, next(t, sub))
	f.feed.ch <- b
	assert.Equal(t, DiscoveredServers{Servers: []models.DiscoveredServer{a, b}}, next(t, sub))
	f.feed.ch <- cc
	assert.Equal(t, DiscoveredServers{Servers: []models.DiscoveredServer{a, b, cc}}, next(t, sub))

	// Duplicates are kept
	f.feed.ch <- a
	assert.Equal(t, DiscoveredServers{Servers: []models.DiscoveredServer{a, b, cc, a}}, next(t, sub))

	close(f.feed.ch)
	assertNoEmission(t, sub)

	assert.Equal(t, 4, notifier.count())
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.discovered))
}

func TestDiscoveryEmissionsAreSnapshots(t *testing.T) {
	f := newFixture()
	c := f.start(t)
	sub := c.DiscoveredServersState().Subscribe()
	defer sub.Close()
	next(t, sub)

	f.feed.ch <- models.DiscoveredServer{ID: "a"}
	first := next(t, sub).(DiscoveredServers)
	f.feed.ch <- models.DiscoveredServer{ID: "b"}
	next(t, sub)

	assert.Len(t, first.Servers, 1, "earlier emission changed after later discovery")
}

func TestDiscoveryBufferCoversMaxDiscovered(t *testing.T) {
	const n = 2 * flow.DefaultBuffer
	f := newFixture()
	opts := f.options(f.store)
	opts.MaxDiscovered = n
	c := New(context.Background(), opts)
	defer c.Close()

	sub := c.DiscoveredServersState().Subscribe()
	defer sub.Close()

	// Nothing reads the subscription until the scan is over
	for i := 0; i < n; i++ {
		f.feed.ch <- models.DiscoveredServer{ID: fmt.Sprintf("s%d", i)}
	}

	assert.Equal(t, DiscoveredLoading{}, next(t, sub))
	for i := 1; i <= n; i++ {
		got, ok := next(t, sub).(DiscoveredServers)
		require.True(t, ok)
		require.Len(t, got.Servers, i, "list %d was dropped", i)
	}
}

func TestDiscoverySlowSubscriberEndsOnLatest(t *testing.T) {
	const n = flow.DefaultBuffer + 10
	f := newFixture()
	c := f.start(t)

	sub := c.DiscoveredServersState().Subscribe()
	defer sub.Close()

	for i := 0; i < n; i++ {
		f.feed.ch <- models.DiscoveredServer{ID: fmt.Sprintf("s%d", i)}
	}
	require.Eventually(t, func() bool {
		got, ok := c.DiscoveredServersState().Value().(DiscoveredServers)
		return ok && len(got.Servers) == n
	}, 2*time.Second, 5*time.Millisecond)

	var last DiscoveredServersState
	received := 0
	for {
		select {
		case v := <-sub.C():
			last = v
			received++
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}

	assert.Equal(t, flow.DefaultBuffer, received, "older lists beyond the buffer are skipped")
	latest, ok := last.(DiscoveredServers)
	require.True(t, ok)
	assert.Len(t, latest.Servers, n)
}

func TestDiscoveryStartFailureGoesToOnError(t *testing.T) {
	f := newFixture()
	opts := f.options(f.store)
	opts.Discoverer = discovery.Multi{failingDiscoverer{err: errors.New("network unreachable")}}

	c := New(context.Background(), opts)
	defer c.Close()

	err := <-f.errs
	assert.ErrorContains(t, err, "network unreachable")
	assert.Equal(t, DiscoveredLoading{}, c.DiscoveredServersState().Value())
}

type failingDiscoverer struct{ err error }

func (d failingDiscoverer) Discover(context.Context) (<-chan models.DiscoveredServer, error) {
	return nil, d.err
}

// TestDiscoveryPrefixProperty: the k-th emission is exactly the first k events
func TestDiscoveryPrefixProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ids := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 1, 20).Draw(rt, "ids")

		f := newFixture()
		c := New(context.Background(), f.options(f.store))
		defer c.Close()
		sub := c.DiscoveredServersState().Subscribe()
		defer sub.Close()
		<-sub.C()

		var sent []models.DiscoveredServer
		for _, id := range ids {
			server := models.DiscoveredServer{ID: id, Name: id, Address: "http://" + id}
			f.feed.ch <- server
			sent = append(sent, server)

			got, ok := (<-sub.C()).(DiscoveredServers)
			if !ok {
				rt.Fatalf("emission is not DiscoveredServers")
			}
			if len(got.Servers) != len(sent) {
				rt.Fatalf("emission has %d servers, want %d", len(got.Servers), len(sent))
			}
			for i := range sent {
				if got.Servers[i] != sent[i] {
					rt.Fatalf("server %d = %+v, want %+v", i, got.Servers[i], sent[i])
				}
			}
		}
	})
}

func TestDeleteServerRemovesFromStore(t *testing.T) {
	f := newFixture()
	server := addServer(t, f.store, "a", "a-addr", "a-user")
	addServer(t, f.store, "b", "b-addr", "b-user")
	c := f.start(t)

	live := c.Servers().Subscribe()
	defer live.Close()
	require.Len(t, next(t, live), 2)

	c.DeleteServer(server)
	remaining := next(t, live)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].ID)
	assert.Equal(t, []string{"a"}, f.store.DeletedIDs())
}

func TestDeleteDoesNotTouchUIState(t *testing.T) {
	f := newFixture()
	server := addServer(t, f.store, "a", "a-addr", "a-user")
	c := f.start(t)

	sub := c.UIState().Subscribe()
	defer sub.Close()
	for state := next(t, sub); state == (UIStateLoading{}); state = next(t, sub) {
	}

	require.NoError(t, c.Delete(context.Background(), server))
	assertNoEmission(t, sub)
}

func TestDeleteFailureGoesToOnError(t *testing.T) {
	f := newFixture()
	server := addServer(t, f.store, "a", "a-addr", "a-user")
	f.store.SetDeleteError(errors.New("database is locked"))
	c := f.start(t)

	c.DeleteServer(server)
	err := <-f.errs
	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.deletes.WithLabelValues("error")))
}

func TestConnectToResolvableServer(t *testing.T) {
	f := newFixture()
	server := addServer(t, f.store, "a", "a-addr", "a-user")
	c := f.start(t)

	nav := c.NavigateToMain().Subscribe()
	defer nav.Close()

	c.ConnectToServer(server)
	assert.True(t, next(t, nav))
	assertNoEmission(t, nav)

	got, ok := f.holder.Current()
	require.True(t, ok)
	assert.Equal(t, session.Session{BaseURL: "http://a:8096", AccessToken: "a-token", UserID: "a-user"}, got)
	assert.Equal(t, "a", f.store.CurrentServer())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.connects.WithLabelValues(ConnectResultConnected)))
}

func TestConnectWithUnresolvableSelection(t *testing.T) {
	tests := []struct {
		name      string
		addressID string
		userID    string
		// listed rewrites the server handed to Connect; nil passes the stored one
		listed func(models.Server) models.Server
	}{
		{"no current address", "", "x-user", nil},
		{"dangling address", "gone", "x-user", nil},
		{"no current user", "x-addr", "", nil},
		{"dangling user", "x-addr", "gone", nil},
		{"listed without selection, stored complete", "x-addr", "x-user", func(s models.Server) models.Server {
			s.CurrentServerAddressID = nil
			s.CurrentUserID = nil
			return s
		}},
		{"listed selection dangling, stored complete", "x-addr", "x-user", func(s models.Server) models.Server {
			s.CurrentUserID = strPtr("gone")
			return s
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			server := addServer(t, f.store, "x", tt.addressID, tt.userID)
			if tt.listed != nil {
				server = tt.listed(server)
			}
			c := New(context.Background(), f.options(f.store))

			nav := c.NavigateToMain().Subscribe()
			defer nav.Close()

			connected, err := c.Connect(context.Background(), server)
			require.NoError(t, err)
			assert.False(t, connected)

			// The fire-and-forget path must behave the same
			c.ConnectToServer(server)
			c.Close()

			assertNoEmission(t, nav)
			_, ok := f.holder.Current()
			assert.False(t, ok, "session was set")
			assert.Empty(t, f.store.CurrentServer())
			assert.Empty(t, f.fatal)
			assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.connects.WithLabelValues(ConnectResultIncomplete)))
		})
	}
}

func TestConnectUsesListedSelection(t *testing.T) {
	f := newFixture()
	// Stored row has no selection yet; the listed server carries one
	stored := addServer(t, f.store, "a", "", "")
	listed := stored
	listed.CurrentServerAddressID = strPtr("a-addr")
	listed.CurrentUserID = strPtr("a-user")

	c := f.start(t)
	nav := c.NavigateToMain().Subscribe()
	defer nav.Close()

	connected := make(chan bool, 1)
	go func() {
		ok, err := c.Connect(context.Background(), listed)
		assert.NoError(t, err)
		connected <- ok
	}()

	assert.True(t, next(t, nav))
	assert.True(t, <-connected)

	got, ok := f.holder.Current()
	require.True(t, ok)
	assert.Equal(t, session.Session{BaseURL: "http://a:8096", AccessToken: "a-token", UserID: "a-user"}, got)
	assert.Equal(t, "a", f.store.CurrentServer())
}

func TestConnectToMissingServerIsFatal(t *testing.T) {
	f := newFixture()
	c := f.start(t)

	nav := c.NavigateToMain().Subscribe()
	defer nav.Close()

	c.ConnectToServer(models.Server{ID: "ghost"})

	select {
	case err := <-f.fatal:
		assert.ErrorIs(t, err, client.ErrServerNotFound)
	case <-time.After(2 * time.Second):
		t.Fatal("missing server did not trigger OnFatal")
	}
	assertNoEmission(t, nav)
	_, ok := f.holder.Current()
	assert.False(t, ok)
}

func TestConnectDefaultFatalPanics(t *testing.T) {
	f := newFixture()
	opts := f.options(f.store)
	opts.OnFatal = nil
	c := New(context.Background(), opts)
	defer c.Close()

	_, err := c.Connect(context.Background(), models.Server{ID: "ghost"})
	require.ErrorIs(t, err, client.ErrServerNotFound)
	assert.Panics(t, func() { c.onFatal(err) })
}

func TestConnectPreferenceFailure(t *testing.T) {
	f := newFixture()
	server := addServer(t, f.store, "a", "a-addr", "a-user")
	c := f.start(t)
	nav := c.NavigateToMain().Subscribe()
	defer nav.Close()

	f.store.SetSetConfigError(errors.New("read-only"))
	connected, err := c.Connect(context.Background(), server)
	assert.False(t, connected)
	assert.ErrorContains(t, err, "read-only")
	assertNoEmission(t, nav)
}

func TestCloseStopsDiscovery(t *testing.T) {
	f := newFixture()
	c := New(context.Background(), f.options(f.store))

	// The feed never closes; Close must not wait for the scan to end by itself
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	// Commands after Close are dropped
	c.ConnectToServer(models.Server{ID: "ghost"})
	assert.Empty(t, f.fatal)
}
