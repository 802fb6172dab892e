package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/aeolun/jellyterm/pkg/models"
	"github.com/google/uuid"
)

const (
	// DefaultBroadcastPort is the UDP port Jellyfin servers answer discovery on
	DefaultBroadcastPort = 7359
	// DefaultTimeout bounds a single scan
	DefaultTimeout = 500 * time.Millisecond
	// DefaultMaxServers stops a scan early once this many replies arrived
	DefaultMaxServers = 10

	discoveryMessage = "who is JellyfinServer?"
	maxReplySize     = 4096
)

// reply is the JSON body a server answers the discovery datagram with
type reply struct {
	ID              string  `json:"Id"`
	Name            string  `json:"Name"`
	Address         string  `json:"Address"`
	EndpointAddress *string `json:"EndpointAddress"`
}

// Broadcast discovers servers by sending the discovery datagram to every
// IPv4 broadcast address and collecting the replies
type Broadcast struct {
	Port       int
	Timeout    time.Duration
	MaxServers int

	// Targets overrides the computed broadcast addresses (host only)
	Targets []string

	logger *log.Logger
}

// NewBroadcast creates a broadcast discoverer with default settings
func NewBroadcast() *Broadcast {
	return &Broadcast{
		Port:       DefaultBroadcastPort,
		Timeout:    DefaultTimeout,
		MaxServers: DefaultMaxServers,
	}
}

// SetLogger sets a logger for discovery events
func (b *Broadcast) SetLogger(logger *log.Logger) {
	b.logger = logger
}

func (b *Broadcast) logf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

// Discover sends the discovery datagram and streams replies until the
// timeout, the context, or MaxServers ends the scan
func (b *Broadcast) Discover(ctx context.Context) (<-chan models.DiscoveredServer, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}

	targets := b.Targets
	if len(targets) == 0 {
		targets = broadcastAddresses()
	}

	sent := 0
	for _, host := range targets {
		addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(b.port())))
		if err != nil {
			b.logf("[DEBUG] Skipping discovery target %s: %v", host, err)
			continue
		}
		if _, err := conn.WriteToUDP([]byte(discoveryMessage), addr); err != nil {
			b.logf("[DEBUG] Discovery send to %s failed: %v", addr, err)
			continue
		}
		sent++
	}
	if sent == 0 {
		conn.Close()
		return nil, errors.New("discovery datagram could not be sent to any address")
	}

	deadline := time.Now().Add(b.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set discovery deadline: %w", err)
	}

	out := make(chan models.DiscoveredServer)

	// Unblock the read loop on cancellation
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	go func() {
		defer close(out)
		defer close(stop)
		defer conn.Close()

		buf := make([]byte, maxReplySize)
		found := 0
		for b.MaxServers <= 0 || found < b.MaxServers {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				var netErr net.Error
				if !errors.As(err, &netErr) || !netErr.Timeout() {
					b.logf("[ERROR] Discovery read failed: %v", err)
				}
				return
			}

			server, err := parseReply(buf[:n])
			if err != nil {
				b.logf("[DEBUG] Ignoring discovery reply from %s: %v", from, err)
				continue
			}

			select {
			case out <- server:
				found++
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (b *Broadcast) port() int {
	if b.Port <= 0 {
		return DefaultBroadcastPort
	}
	return b.Port
}

func (b *Broadcast) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultTimeout
	}
	return b.Timeout
}

// parseReply decodes a discovery reply into a DiscoveredServer
func parseReply(data []byte) (models.DiscoveredServer, error) {
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		return models.DiscoveredServer{}, fmt.Errorf("invalid reply: %w", err)
	}
	if r.ID == "" || r.Address == "" {
		return models.DiscoveredServer{}, errors.New("reply is missing id or address")
	}

	return models.DiscoveredServer{
		ID:      NormalizeID(r.ID),
		Name:    r.Name,
		Address: strings.TrimRight(r.Address, "/"),
	}, nil
}

// NormalizeID renders server ids in the dashless lower-case form servers
// report them in, whichever form they were given in. Non-UUID ids pass through.
func NormalizeID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return strings.ReplaceAll(parsed.String(), "-", "")
}

// broadcastAddresses returns the directed broadcast address of every up IPv4
// interface plus the limited broadcast address
func broadcastAddresses() []string {
	seen := map[string]bool{"255.255.255.255": true}
	result := []string{"255.255.255.255"}

	ifaces, err := net.Interfaces()
	if err != nil {
		return result
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || len(ipNet.Mask) != net.IPv4len {
				continue
			}
			bcast := make(net.IP, net.IPv4len)
			for i := range ip {
				bcast[i] = ip[i] | ^ipNet.Mask[i]
			}
			if s := bcast.String(); !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}
	return result
}
