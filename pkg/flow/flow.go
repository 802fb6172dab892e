// Package flow provides single-writer observable values for the screen layer.
//
// A State always has a current value and replays it to every new subscriber.
// An Event has no value of its own; emissions reach only the subscribers that
// exist at the time of the emission.
package flow

import (
	"context"
	"sync"
)

// DefaultBuffer is the per-subscriber buffer used by NewState
const DefaultBuffer = 64

// Subscription is a read-only view on a State or Event
type Subscription[T any] struct {
	ch          chan T
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

func newSubscription[T any](buffer int) *Subscription[T] {
	return &Subscription[T]{
		ch:   make(chan T, buffer),
		done: make(chan struct{}),
	}
}

// C returns the channel values are delivered on
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Done is closed once the subscription is closed
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// State is a value with a single writer and any number of readers
type State[T any] struct {
	mu     sync.Mutex
	value  T
	buffer int
	subs   map[*Subscription[T]]struct{}
}

// NewState creates a state holding initial
func NewState[T any](initial T) *State[T] {
	return NewStateWithBuffer(initial, DefaultBuffer)
}

// NewStateWithBuffer creates a state whose subscribers buffer up to buffer
// values. A subscriber that falls further behind loses the oldest values;
// the latest value is always delivered.
func NewStateWithBuffer[T any](initial T, buffer int) *State[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &State[T]{
		value:  initial,
		buffer: buffer,
		subs:   make(map[*Subscription[T]]struct{}),
	}
}

// Value returns the current value
func (s *State[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the current value and publishes it to all subscribers.
// Never blocks.
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	for sub := range s.subs {
		offer(sub.ch, v)
	}
}

// Subscribe returns a subscription that immediately receives the current
// value followed by every later Set. The channel is closed by Close.
func (s *State[T]) Subscribe() *Subscription[T] {
	sub := newSubscription[T](s.buffer)
	sub.unsubscribe = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, sub)
		close(sub.ch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ch <- s.value
	s.subs[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of attached subscriptions
func (s *State[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// offer delivers v, dropping the oldest buffered value when ch is full
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Event is a fire-and-forget broadcast without replay
type Event[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

// NewEvent creates an event with no subscribers
func NewEvent[T any]() *Event[T] {
	return &Event[T]{
		subs: make(map[*Subscription[T]]struct{}),
	}
}

// Subscribe attaches a listener. Only emissions made after Subscribe returns
// are delivered. The channel is never closed; select on Done as well.
func (e *Event[T]) Subscribe() *Subscription[T] {
	sub := newSubscription[T](0)
	sub.unsubscribe = func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, sub)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs[sub] = struct{}{}
	return sub
}

// Emit delivers v to every current subscriber, waiting until each one has
// received it or closed its subscription. With no subscribers Emit returns
// immediately and v is dropped.
func (e *Event[T]) Emit(ctx context.Context, v T) error {
	e.mu.Lock()
	targets := make([]*Subscription[T], 0, len(e.subs))
	for sub := range e.subs {
		targets = append(targets, sub)
	}
	e.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- v:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns the number of attached subscriptions
func (e *Event[T]) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
