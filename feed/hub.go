package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aspicho/stream-chat-reader/message"
)

const (
	AdminFeed  = "admin"
	ClientFeed = "client"
)

// Hub holds the two buses.
type Hub struct {
	Admin  *Bus
	Client *Bus

	relay *RedisRelay
}

// NewHub builds both buses with the same per-subscriber bound. relay may be nil.
func NewHub(buffer int, relay *RedisRelay) *Hub {
	h := &Hub{
		Admin:  NewBus(AdminFeed, buffer),
		Client: NewBus(ClientFeed, buffer),
		relay:  relay,
	}
	return h
}

// Start attaches the relay, if any. It returns once both Redis subscriptions are
// confirmed so no message published afterwards can be missed; the delivery loops
// run until ctx is done, after which the buses deliver locally again.
func (h *Hub) Start(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	for _, b := range []*Bus{h.Admin, h.Client} {
		bus := b
		msgs, err := h.relay.Subscribe(ctx, bus.name)
		if err != nil {
			return fmt.Errorf("subscribe %s feed: %w", bus.name, err)
		}
		go func() {
			for m := range msgs {
				bus.deliver(m)
			}
			bus.detachRelay(h.relay)
			slog.Info("feed relay loop stopped", slog.String("feed", bus.name), slog.String("component", "feed"))
		}()
		bus.attachRelay(h.relay)
	}
	return nil
}

// BusStats summarizes one bus for diagnostics.
type BusStats struct {
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
	Buffer      int    `json:"buffer"`
}

// Stats reports both buses.
func (h *Hub) Stats() map[string]BusStats {
	out := make(map[string]BusStats, 2)
	for _, b := range []*Bus{h.Admin, h.Client} {
		out[b.name] = BusStats{Subscribers: b.Subscribers(), Dropped: b.Dropped(), Buffer: b.buffer}
	}
	return out
}

// Broadcast publishes m on both buses, admin first.
func (h *Hub) Broadcast(ctx context.Context, m message.ChatMessage) {
	h.Admin.Publish(ctx, m)
	h.Client.Publish(ctx, m)
}
