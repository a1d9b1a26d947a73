// Package eventbus fans game lifecycle events out to any number of
// listeners. Two subscription styles are offered: single-shot Listen
// channels that resolve on the next event (re-arm by calling Listen again),
// and persistent bounded Subscriptions that receive every event in order.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"card-party/internal/game"

	"github.com/rs/zerolog/log"
)

// Type tags a lifecycle event.
type Type string

const (
	TypeStart  Type = "start"
	TypeStop   Type = "stop"
	TypeChange Type = "change"
	TypeDelete Type = "delete"
)

// Event is the bus payload. Game, when set, must be treated as read-only by
// every listener; reacting with a mutation must happen from a separate
// goroutine, never inside the delivery itself.
type Event struct {
	Type    Type
	GameID  string
	Action  string
	Details map[string]any
	Game    *game.Game
}

// Bus delivers each event exactly once to every listener registered at
// notify time. Notify is not re-entrant: a listener that synchronously
// triggers another Notify is a usage error and panics.
type Bus struct {
	mu        sync.Mutex
	oneshots  []chan Event
	streams   map[*Subscription]struct{}
	notifying atomic.Bool
	wait      time.Duration
}

// DefaultDeliveryWait bounds how long Notify blocks on one full subscriber.
const DefaultDeliveryWait = 30 * time.Second

// New returns a bus whose Notify waits at most wait per full subscriber
// before dropping the event for that subscriber. wait <= 0 selects
// DefaultDeliveryWait.
func New(wait time.Duration) *Bus {
	if wait <= 0 {
		wait = DefaultDeliveryWait
	}
	return &Bus{streams: map[*Subscription]struct{}{}, wait: wait}
}

// Listen registers a single-shot listener: the returned channel yields the
// next event and is then closed. Callers re-listen to keep receiving, which
// makes unsubscription implicit.
func (b *Bus) Listen() <-chan Event {
	ch := make(chan Event, 1)
	b.mu.Lock()
	b.oneshots = append(b.oneshots, ch)
	b.mu.Unlock()
	return ch
}

// Notify delivers ev to every current listener. The single-shot list is
// swapped out before any delivery, so listeners re-arming from their own
// delivery never receive ev twice.
func (b *Bus) Notify(ev Event) {
	if !b.notifying.CompareAndSwap(false, true) {
		panic("eventbus: recursive or concurrent notify")
	}
	defer b.notifying.Store(false)

	b.mu.Lock()
	oneshots := b.oneshots
	b.oneshots = nil
	streams := make([]*Subscription, 0, len(b.streams))
	for s := range b.streams {
		streams = append(streams, s)
	}
	b.mu.Unlock()

	for _, ch := range oneshots {
		ch <- ev
		close(ch)
	}
	for _, s := range streams {
		s.deliver(ev)
	}
}

// Subscribe registers a persistent listener with a bounded buffer. Every
// event is delivered at most once, in notify order; a subscriber that stops
// draining stalls Notify for the bus's delivery wait and then loses the
// event, so consumers must keep reading or Close.
func (b *Bus) Subscribe(buf int) *Subscription {
	s := &Subscription{
		bus:  b,
		ch:   make(chan Event, buf),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.streams[s] = struct{}{}
	b.mu.Unlock()
	return s
}

type Subscription struct {
	bus  *Bus
	ch   chan Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Events yields the subscription's deliveries. The channel is never closed;
// select on Done to observe shutdown.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close detaches the subscription. Events already buffered may still be
// read; no further deliveries occur. Idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.bus.mu.Lock()
	delete(s.bus.streams, s)
	s.bus.mu.Unlock()
}

func (s *Subscription) deliver(ev Event) {
	select {
	case s.ch <- ev:
		return
	case <-s.done:
		return
	default:
	}
	timer := time.NewTimer(s.bus.wait)
	defer timer.Stop()
	select {
	case s.ch <- ev:
	case <-s.done:
	case <-timer.C:
		log.Warn().
			Str("type", string(ev.Type)).
			Str("game_id", ev.GameID).
			Dur("wait", s.bus.wait).
			Msg("eventbus: subscriber not draining, event dropped")
	}
}
