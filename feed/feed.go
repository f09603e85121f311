// Package feed implements the two live message buses: the admin feed that carries
// every stored message and the client feed that carries only approved ones.
//
// A bus never blocks its publisher. Each subscriber owns a bounded queue; when a
// subscriber falls behind, its oldest unread message is discarded and counted.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/telemetry"
)

// DefaultBuffer is the per-subscriber queue bound used when none is configured.
const DefaultBuffer = 1000

// ErrClosed is returned by Recv once the subscription has been closed.
var ErrClosed = errors.New("feed: subscription closed")

// Bus is a multi-producer, multi-consumer broadcast of chat messages.
type Bus struct {
	name   string
	buffer int
	relay  *RedisRelay

	pubMu sync.Mutex // one publish at a time keeps a single order per bus

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	dropped atomic.Uint64
}

// NewBus creates a bus. buffer <= 0 selects DefaultBuffer.
func NewBus(name string, buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{name: name, buffer: buffer, subs: make(map[*Subscription]struct{})}
}

// Name returns the bus label used in logs and metrics.
func (b *Bus) Name() string { return b.name }

// Subscribe returns a handle that observes every message published after this call.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:    b,
		ring:   make([]message.ChatMessage, b.buffer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	telemetry.AddFeedSubscribers(b.name, 1)
	return s
}

// Publish hands m to every current subscriber. It never waits on a slow subscriber.
// With a relay attached the message goes through Redis first and local delivery
// happens from the relay loop; if Redis rejects it, it is delivered locally.
func (b *Bus) Publish(ctx context.Context, m message.ChatMessage) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if b.relay != nil {
		err := b.relay.Publish(ctx, b.name, m)
		if err == nil {
			return
		}
		slog.Warn("feed relay publish failed, delivering locally",
			slog.String("feed", b.name), slog.Any("err", err), slog.String("component", "feed"))
	}
	b.deliver(m)
}

func (b *Bus) attachRelay(r *RedisRelay) {
	b.pubMu.Lock()
	b.relay = r
	b.pubMu.Unlock()
}

// detachRelay drops r once its delivery loop is gone, unless another relay replaced it.
func (b *Bus) detachRelay(r *RedisRelay) {
	b.pubMu.Lock()
	if b.relay == r {
		b.relay = nil
	}
	b.pubMu.Unlock()
}

func (b *Bus) deliver(m message.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.push(m)
	}
}

func (b *Bus) remove(s *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return false
	}
	delete(b.subs, s)
	return true
}

// Subscribers returns the current subscription count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many messages lagging subscribers have lost on this bus.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscription is one consumer's view of a bus.
type Subscription struct {
	bus *Bus

	mu    sync.Mutex
	ring  []message.ChatMessage
	head  int
	count int

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func (s *Subscription) push(m message.ChatMessage) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	if s.count == len(s.ring) {
		// drop oldest
		s.ring[s.head] = message.ChatMessage{}
		s.head = (s.head + 1) % len(s.ring)
		s.count--
		s.dropped.Add(1)
		s.bus.dropped.Add(1)
		telemetry.IncFeedDropped(s.bus.name)
	}
	s.ring[(s.head+s.count)%len(s.ring)] = m
	s.count++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() (message.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return message.ChatMessage{}, false
	}
	m := s.ring[s.head]
	s.ring[s.head] = message.ChatMessage{}
	s.head = (s.head + 1) % len(s.ring)
	s.count--
	return m, true
}

// Recv blocks until a message is available, ctx is done or the subscription is closed.
// Messages queued before Close are not returned after it.
func (s *Subscription) Recv(ctx context.Context) (message.ChatMessage, error) {
	for {
		select {
		case <-s.done:
			return message.ChatMessage{}, ErrClosed
		default:
		}
		if m, ok := s.pop(); ok {
			return m, nil
		}
		select {
		case <-s.notify:
		case <-s.done:
			return message.ChatMessage{}, ErrClosed
		case <-ctx.Done():
			return message.ChatMessage{}, ctx.Err()
		}
	}
}

// Dropped returns how many messages this subscriber lost by falling behind.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Pending returns how many messages are queued and unread.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close detaches the subscription from its bus. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.bus.remove(s) {
			telemetry.AddFeedSubscribers(s.bus.name, -1)
		}
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	})
}
