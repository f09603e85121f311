package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer serves canned Helix and token responses keyed by path.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUsers answers /helix/users with the users whose login is requested.
// users maps login to id.
func (m *MockTwitchServer) MockUsers(users map[string]string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]string{}
		for _, login := range r.URL.Query()["login"] {
			if id, ok := users[strings.ToLower(login)]; ok {
				data = append(data, map[string]string{"id": id, "login": login, "display_name": login})
			}
		}
		writeJSON(w, map[string]any{"data": data})
	}
}

// MockOAuthTokenResponse adds a handler for the client credentials endpoint.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}
}

// MockYouTubeServer serves the handful of Data API endpoints the live chat reader uses.
// Point a client at it with option.WithEndpoint(srv.URL + "/").
type MockYouTubeServer struct {
	*httptest.Server

	mu     sync.Mutex
	videos map[string]string // video id -> active live chat id
	live   map[string]string // channel id -> live video id
	pages  map[string][]string
	polls  map[string]int
}

// NewMockYouTubeServer returns a server with no broadcasts.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		videos: make(map[string]string),
		live:   make(map[string]string),
		pages:  make(map[string][]string),
		polls:  make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// AddBroadcast registers a live video on channelID with the given chat.
func (m *MockYouTubeServer) AddBroadcast(channelID, videoID, chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[channelID] = videoID
	m.videos[videoID] = chatID
}

// AddPage queues one liveChatMessages page for chatID. Each entry is "author: text".
// Once the queue is empty the chat reports liveChatEnded.
func (m *MockYouTubeServer) AddPage(chatID string, lines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[chatID] = append(m.pages[chatID], strings.Join(lines, "\n"))
}

// Polls returns how many times chatID was polled.
func (m *MockYouTubeServer) Polls(chatID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[chatID]
}

func (m *MockYouTubeServer) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := r.URL.Query()
	switch {
	case strings.HasSuffix(r.URL.Path, "/search"):
		items := []map[string]any{}
		if vid, ok := m.live[q.Get("channelId")]; ok && q.Get("eventType") == "live" {
			items = append(items, map[string]any{"id": map[string]string{"kind": "youtube#video", "videoId": vid}})
		}
		writeJSON(w, map[string]any{"items": items})
	case strings.HasSuffix(r.URL.Path, "/videos"):
		items := []map[string]any{}
		if chat, ok := m.videos[q.Get("id")]; ok {
			items = append(items, map[string]any{"id": q.Get("id"), "liveStreamingDetails": map[string]string{"activeLiveChatId": chat}})
		}
		writeJSON(w, map[string]any{"items": items})
	case strings.HasSuffix(r.URL.Path, "/liveChat/messages"):
		chat := q.Get("liveChatId")
		m.polls[chat]++
		queue := m.pages[chat]
		if len(queue) == 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The live chat is no longer live.","errors":[{"reason":"liveChatEnded"}]}}`))
			return
		}
		m.pages[chat] = queue[1:]
		items := []map[string]any{}
		for i, line := range strings.Split(queue[0], "\n") {
			if line == "" {
				continue
			}
			author, text, _ := strings.Cut(line, ": ")
			items = append(items, map[string]any{
				"id": chat + "-" + strings.Repeat("x", m.polls[chat]) + "-" + string(rune('a'+i)),
				"snippet": map[string]any{
					"type":               "textMessageEvent",
					"displayMessage":     text,
					"textMessageDetails": map[string]string{"messageText": text},
				},
				"authorDetails": map[string]any{"displayName": author, "channelId": "UC" + author},
			})
		}
		writeJSON(w, map[string]any{"items": items, "nextPageToken": "page", "pollingIntervalMillis": 0})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
