package kick

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	kickchat "github.com/johanvandegriff/kick-chat-wrapper"

	"github.com/aspicho/stream-chat-reader/platform"
)

func newTestAdapter(t *testing.T, h http.HandlerFunc, msgs chan kickchat.ChatMessage) (*Adapter, *int) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	joined := new(int)
	return &Adapter{
		APIBase:    srv.URL + "/api/v2",
		HTTPClient: srv.Client(),
		Connect: func(id int) (<-chan kickchat.ChatMessage, func(), error) {
			*joined = id
			return msgs, func() {}, nil
		},
	}, joined
}

func TestResolveChatroom(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/channels/somestreamer" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user agent")
		}
		_, _ = w.Write([]byte(`{"id":7,"slug":"somestreamer","chatroom":{"id":4242}}`))
	}, nil)

	id, err := a.ResolveChatroom(context.Background(), "somestreamer")
	if err != nil || id != 4242 {
		t.Fatalf("resolve = %d, %v", id, err)
	}
	if _, err := a.ResolveChatroom(context.Background(), "nobody"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestOpenForwardsMessages(t *testing.T) {
	msgs := make(chan kickchat.ChatMessage, 4)
	a, joined := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":7,"slug":"somestreamer","chatroom":{"id":4242}}`))
	}, msgs)

	s, err := a.Open(context.Background(), "SomeStreamer")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if *joined != 4242 {
		t.Fatalf("joined chatroom %d", *joined)
	}

	var m kickchat.ChatMessage
	m.ChatroomID = 4242
	m.Content = "hello kick"
	m.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m.Sender.ID = 99
	m.Sender.Username = "viewer"
	m.Sender.Identity.Badges = []kickchat.Badge{{Type: "subscriber", Text: "Subscriber"}, {Type: "og"}}
	other := m
	other.ChatroomID = 1
	msgs <- other
	msgs <- m
	close(msgs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ev.Kind != platform.EventMessage || ev.Username != "viewer" || ev.Content != "hello kick" {
		t.Fatalf("unexpected event %+v", ev)
	}
	badges, _ := ev.Metadata["badges"].([]string)
	if len(badges) != 2 || badges[0] != "subscriber:Subscriber" || badges[1] != "og" {
		t.Fatalf("badges = %v", ev.Metadata["badges"])
	}
	if ev.Metadata["created_at"] != "2024-01-02T03:04:05Z" {
		t.Fatalf("created_at = %v", ev.Metadata["created_at"])
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("closed feed should end the stream, got %v", err)
	}
}

func TestOpenNumericChatroomSkipsLookup(t *testing.T) {
	msgs := make(chan kickchat.ChatMessage)
	a, joined := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected lookup")
		w.WriteHeader(http.StatusInternalServerError)
	}, msgs)
	s, err := a.Open(context.Background(), "555")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Close()
	if *joined != 555 {
		t.Fatalf("joined chatroom %d", *joined)
	}
}
