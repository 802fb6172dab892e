// Package discovery finds media servers on the local network.
//
// Every Discoverer returns a channel of results that is closed when the scan
// ends, either because its time budget ran out or because the context was
// cancelled. Results are delivered in the order they arrive.
package discovery

import (
	"context"
	"sync"

	"github.com/aeolun/jellyterm/pkg/models"
)

// Discoverer runs one time-bounded scan
type Discoverer interface {
	Discover(ctx context.Context) (<-chan models.DiscoveredServer, error)
}

// Multi runs several discoverers at once and merges their results
type Multi []Discoverer

// Discover starts every source. It fails only if no source could start.
func (m Multi) Discover(ctx context.Context) (<-chan models.DiscoveredServer, error) {
	var sources []<-chan models.DiscoveredServer
	var firstErr error
	for _, d := range m {
		ch, err := d.Discover(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sources = append(sources, ch)
	}
	if len(sources) == 0 && firstErr != nil {
		return nil, firstErr
	}

	out := make(chan models.DiscoveredServer)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan models.DiscoveredServer) {
			defer wg.Done()
			for server := range src {
				select {
				case out <- server:
				case <-ctx.Done():
					// Keep draining so the source can finish and close
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// Static replays a fixed list of servers, then closes
type Static []models.DiscoveredServer

// Discover emits every server in order
func (s Static) Discover(ctx context.Context) (<-chan models.DiscoveredServer, error) {
	out := make(chan models.DiscoveredServer)
	go func() {
		defer close(out)
		for _, server := range s {
			select {
			case out <- server:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
