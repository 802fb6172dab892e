package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/grandcat/zeroconf"
)

const (
	// DefaultMDNSService is the DNS-SD service type browsed for
	DefaultMDNSService = "_jellyfin._tcp"
	defaultMDNSDomain  = "local."
)

// MDNS discovers servers that announce themselves over DNS-SD
type MDNS struct {
	Service string
	Domain  string
	Timeout time.Duration

	logger *log.Logger
}

// NewMDNS creates an mDNS discoverer for service
func NewMDNS(service string) *MDNS {
	if service == "" {
		service = DefaultMDNSService
	}
	return &MDNS{
		Service: service,
		Domain:  defaultMDNSDomain,
		Timeout: DefaultTimeout,
	}
}

// SetLogger sets a logger for discovery events
func (m *MDNS) SetLogger(logger *log.Logger) {
	m.logger = logger
}

func (m *MDNS) logf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// Discover browses for the service until the timeout or ctx ends the scan
func (m *MDNS) Discover(ctx context.Context) (<-chan models.DiscoveredServer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	browseCtx, cancel := context.WithTimeout(ctx, timeout)

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(browseCtx, m.Service, m.Domain, entries); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to browse %s: %w", m.Service, err)
	}

	out := make(chan models.DiscoveredServer)
	go func() {
		defer close(out)
		defer cancel()

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				server, ok := entryToServer(entry)
				if !ok {
					m.logf("[DEBUG] Ignoring mDNS entry %q without an IPv4 address", entry.Instance)
					continue
				}
				select {
				case out <- server:
				case <-browseCtx.Done():
					return
				}
			case <-browseCtx.Done():
				return
			}
		}
	}()

	return out, nil
}

// entryToServer maps a DNS-SD entry to a DiscoveredServer. The id comes from
// an "id=" TXT record when present, otherwise the instance name is used.
func entryToServer(entry *zeroconf.ServiceEntry) (models.DiscoveredServer, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return models.DiscoveredServer{}, false
	}

	id := entry.Instance
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "id="); ok && v != "" {
			id = NormalizeID(v)
			break
		}
	}

	return models.DiscoveredServer{
		ID:      id,
		Name:    entry.Instance,
		Address: "http://" + net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port)),
	}, true
}
