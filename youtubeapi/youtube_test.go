package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/aspicho/stream-chat-reader/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), &config.Config{},
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(context.Background(), &config.Config{}); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestResolveLiveChatByHandle(t *testing.T) {
	var searched []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/channels"):
			if got := r.URL.Query().Get("forHandle"); got != "@somestreamer" {
				t.Errorf("forHandle = %q", got)
			}
			_, _ = w.Write([]byte(`{"items":[{"id":"UCabc"}]}`))
		case strings.HasSuffix(r.URL.Path, "/search"):
			et := r.URL.Query().Get("eventType")
			searched = append(searched, et)
			if et == "live" {
				_, _ = w.Write([]byte(`{"items":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"items":[{"id":{"kind":"youtube#video","videoId":"vid1"}}]}`))
		case strings.HasSuffix(r.URL.Path, "/videos"):
			_, _ = w.Write([]byte(`{"items":[{"id":"vid1","liveStreamingDetails":{"activeLiveChatId":"chat-1"}}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	lc, err := c.ResolveLiveChat(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if lc.VideoID != "vid1" || lc.ChatID != "chat-1" {
		t.Fatalf("unexpected live chat %+v", lc)
	}
	if len(searched) != 2 || searched[0] != "live" || searched[1] != "upcoming" {
		t.Fatalf("search order = %v", searched)
	}
}

func TestResolveLiveChatNotLive(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/videos") {
			_, _ = w.Write([]byte(`{"items":[{"id":"vid1","liveStreamingDetails":{}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	})

	if _, err := c.ResolveLiveChat(context.Background(), "video:vid1"); !errors.Is(err, ErrNotLive) {
		t.Fatalf("expected ErrNotLive for video, got %v", err)
	}
	if _, err := c.ResolveLiveChat(context.Background(), "UCquiet"); !errors.Is(err, ErrNotLive) {
		t.Fatalf("expected ErrNotLive for channel, got %v", err)
	}
}

func TestListMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/liveChat/messages") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("liveChatId") != "chat-1" {
			t.Errorf("liveChatId = %q", r.URL.Query().Get("liveChatId"))
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "p2" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The live chat is no longer live.","errors":[{"reason":"liveChatEnded","message":"ended"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"nextPageToken":"p2",
			"pollingIntervalMillis":1500,
			"items":[{"id":"m1","snippet":{"type":"textMessageEvent","displayMessage":"hi","textMessageDetails":{"messageText":"hi"}},
			          "authorDetails":{"channelId":"UCx","displayName":"viewer"}}]
		}`))
	})

	page, err := c.ListMessages(context.Background(), "chat-1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].AuthorDetails.DisplayName != "viewer" {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.NextPageToken != "p2" || page.PollInterval != 1500*time.Millisecond || page.Offline {
		t.Fatalf("unexpected paging %+v", page)
	}

	_, err = c.ListMessages(context.Background(), "chat-1", "p2")
	if !errors.Is(err, ErrChatEnded) {
		t.Fatalf("expected ErrChatEnded, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend error"}}`))
	})
	_, err := c.ListMessages(context.Background(), "chat-1", "")
	if err == nil || !IsRetryable(err) || IsChatEnded(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain error must not be retryable")
	}
}
