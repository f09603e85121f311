package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aspicho/stream-chat-reader/message"
)

func msg(t *testing.T, content string) message.ChatMessage {
	t.Helper()
	m, err := message.New(message.Twitch, "alice", "bob", content, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func recv(t *testing.T, s *Subscription) message.ChatMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := s.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return m
}

func TestSubscribeSeesOnlyLaterMessages(t *testing.T) {
	b := NewBus("test", 10)
	ctx := context.Background()
	b.Publish(ctx, msg(t, "before"))

	s := b.Subscribe()
	defer s.Close()
	b.Publish(ctx, msg(t, "after"))

	if got := recv(t, s); got.Content != "after" {
		t.Fatalf("got %q, want %q", got.Content, "after")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected empty queue, got %d", s.Pending())
	}
}

func TestFanOutPreservesOrder(t *testing.T) {
	b := NewBus("test", 100)
	ctx := context.Background()
	subs := []*Subscription{b.Subscribe(), b.Subscribe(), b.Subscribe()}
	for i := 0; i < 50; i++ {
		b.Publish(ctx, msg(t, fmt.Sprint(i)))
	}
	for _, s := range subs {
		for i := 0; i < 50; i++ {
			if got := recv(t, s); got.Content != fmt.Sprint(i) {
				t.Fatalf("position %d: got %q", i, got.Content)
			}
		}
		s.Close()
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after close, got %d", b.Subscribers())
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBus("test", 3)
	ctx := context.Background()
	slow := b.Subscribe()
	defer slow.Close()

	for i := 0; i < 5; i++ {
		b.Publish(ctx, msg(t, fmt.Sprint(i)))
	}
	if slow.Dropped() != 2 || b.Dropped() != 2 {
		t.Fatalf("dropped sub=%d bus=%d, want 2", slow.Dropped(), b.Dropped())
	}
	for _, want := range []string{"2", "3", "4"} {
		if got := recv(t, slow); got.Content != want {
			t.Fatalf("got %q, want %q", got.Content, want)
		}
	}
}

func TestPublishDoesNotBlockOnIdleSubscriber(t *testing.T) {
	b := NewBus("test", 1)
	s := b.Subscribe()
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(context.Background(), msg(t, "x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a subscriber that never reads")
	}
}

func TestRecvAfterClose(t *testing.T) {
	b := NewBus("test", 4)
	s := b.Subscribe()
	b.Publish(context.Background(), msg(t, "queued"))
	s.Close()
	s.Close()
	if _, err := s.Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRecvHonorsContext(t *testing.T) {
	b := NewBus("test", 4)
	s := b.Subscribe()
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCloseWakesBlockedRecv(t *testing.T) {
	b := NewBus("test", 4)
	s := b.Subscribe()
	errc := make(chan error, 1)
	go func() {
		_, err := s.Recv(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	s.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("recv did not return after close")
	}
}

func TestConcurrentPublishersSingleOrder(t *testing.T) {
	b := NewBus("test", 1000)
	a, c := b.Subscribe(), b.Subscribe()
	defer a.Close()
	defer c.Close()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Publish(context.Background(), msg(t, fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	for i := 0; i < 200; i++ {
		x, y := recv(t, a), recv(t, c)
		if x.ID != y.ID {
			t.Fatalf("subscribers disagree on order at %d", i)
		}
	}
}

func TestHubBusesAreIndependent(t *testing.T) {
	h := NewHub(10, nil)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	admin := h.Admin.Subscribe()
	client := h.Client.Subscribe()
	defer admin.Close()
	defer client.Close()

	h.Admin.Publish(context.Background(), msg(t, "pending"))
	if got := recv(t, admin); got.Content != "pending" {
		t.Fatalf("admin got %q", got.Content)
	}
	if client.Pending() != 0 {
		t.Fatal("client feed received an admin-only message")
	}

	h.Broadcast(context.Background(), msg(t, "notice"))
	if recv(t, admin).Content != "notice" || recv(t, client).Content != "notice" {
		t.Fatal("broadcast did not reach both feeds")
	}

	stats := h.Stats()
	if stats[AdminFeed].Subscribers != 1 || stats[ClientFeed].Buffer != 10 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
