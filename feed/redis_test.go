package feed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisRelayRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := NewRedisRelay(client, "test-"+time.Now().Format("150405.000"))
	if err := relay.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	a := NewHub(10, relay)
	b := NewHub(10, relay)
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}

	sub := b.Client.Subscribe()
	defer sub.Close()
	m := msg(t, "across instances")
	a.Client.Publish(ctx, m)

	got := recv(t, sub)
	if got.ID != m.ID || got.Content != m.Content {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestDetachRelayKeepsReplacement(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })
	old := NewRedisRelay(client, "old")
	current := NewRedisRelay(client, "current")

	b := NewBus(ClientFeed, 4)
	b.attachRelay(current)
	b.detachRelay(old)
	if b.relay != current {
		t.Fatal("detaching a stale relay removed the current one")
	}
	b.detachRelay(current)
	if b.relay != nil {
		t.Fatal("relay still attached after detach")
	}

	sub := b.Subscribe()
	defer sub.Close()
	m := msg(t, "local again")
	b.Publish(context.Background(), m)
	if got := recv(t, sub); got.ID != m.ID {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestHubDeliversLocallyAfterRelayStops(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(10, NewRedisRelay(client, "test-stop-"+time.Now().Format("150405.000")))
	if err := h.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.Client.pubMu.Lock()
		attached := h.Client.relay != nil
		h.Client.pubMu.Unlock()
		if !attached {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("relay still attached after its context ended")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sub := h.Client.Subscribe()
	defer sub.Close()
	m := msg(t, "during shutdown")
	h.Client.Publish(context.Background(), m)
	if got := recv(t, sub); got.ID != m.ID {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}
