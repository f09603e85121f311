// Package kick reads Kick chat through the public Pusher websocket.
package kick

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	kickchat "github.com/johanvandegriff/kick-chat-wrapper"

	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/platform"
)

const (
	// DefaultAPIBase is where channel slugs are resolved to chatroom ids.
	DefaultAPIBase = "https://kick.com/api/v2"
	eventBuffer    = 256
)

// ErrChannelNotFound is returned when Kick has no channel with the slug.
var ErrChannelNotFound = errors.New("kick channel not found")

// ConnectFunc joins one chatroom and returns its message feed and a function that disconnects.
type ConnectFunc func(chatroomID int) (<-chan kickchat.ChatMessage, func(), error)

// Adapter opens one websocket per channel. A channel is either a slug or a numeric chatroom id.
type Adapter struct {
	APIBase    string
	HTTPClient *http.Client
	Connect    ConnectFunc
}

// New returns an adapter talking to kick.com.
func New() *Adapter {
	return &Adapter{
		APIBase:    DefaultAPIBase,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Connect:    connectWrapper,
	}
}

func (a *Adapter) Platform() message.Platform { return message.Kick }

func connectWrapper(chatroomID int) (<-chan kickchat.ChatMessage, func(), error) {
	client, err := kickchat.NewClient()
	if err != nil {
		return nil, nil, fmt.Errorf("kick websocket: %w", err)
	}
	if err := client.JoinChannelByID(chatroomID); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("join chatroom %d: %w", chatroomID, err)
	}
	return client.ListenForMessages(), func() { client.Close() }, nil
}

// Open resolves channel to a chatroom and starts forwarding its messages.
func (a *Adapter) Open(ctx context.Context, channel string) (platform.Stream, error) {
	slug := strings.ToLower(strings.TrimSpace(channel))
	if slug == "" {
		return nil, errors.New("empty channel name")
	}
	chatroomID, err := strconv.Atoi(slug)
	if err != nil {
		if chatroomID, err = a.ResolveChatroom(ctx, slug); err != nil {
			return nil, err
		}
	}

	msgs, disconnect, err := a.Connect(chatroomID)
	if err != nil {
		return nil, err
	}
	pipe := platform.NewPipe(eventBuffer, func() error {
		disconnect()
		return nil
	})
	go forward(msgs, chatroomID, pipe)

	slog.Info("joined kick chat", slog.String("channel", slug), slog.Int("chatroom_id", chatroomID), slog.String("component", "kick"))
	return pipe, nil
}

func forward(msgs <-chan kickchat.ChatMessage, chatroomID int, pipe *platform.Pipe) {
	for m := range msgs {
		if m.ChatroomID != 0 && m.ChatroomID != chatroomID {
			continue
		}
		if !pipe.Send(convert(m)) {
			return
		}
	}
	pipe.End(nil)
}

func convert(m kickchat.ChatMessage) platform.Event {
	badges := make([]string, 0, len(m.Sender.Identity.Badges))
	for _, b := range m.Sender.Identity.Badges {
		if b.Text != "" {
			badges = append(badges, b.Type+":"+b.Text)
		} else {
			badges = append(badges, b.Type)
		}
	}
	meta := map[string]any{
		"user_id":     m.Sender.ID,
		"chatroom_id": m.ChatroomID,
		"badges":      badges,
	}
	if !m.CreatedAt.IsZero() {
		meta["created_at"] = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	return platform.Event{
		Kind:     platform.EventMessage,
		Username: m.Sender.Username,
		Content:  m.Content,
		Metadata: meta,
	}
}

type channelResponse struct {
	ID       int    `json:"id"`
	Slug     string `json:"slug"`
	Chatroom struct {
		ID int `json:"id"`
	} `json:"chatroom"`
}

// ResolveChatroom looks up the chatroom id for slug. Kick rejects requests that do not look
// like they come from a browser, hence the headers.
func (a *Adapter) ResolveChatroom(ctx context.Context, slug string) (int, error) {
	base := a.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/channels/"+url.PathEscape(slug), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://kick.com/")
	req.Header.Set("Origin", "https://kick.com")

	hc := a.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("kick channel lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: %s", ErrChannelNotFound, slug)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("kick channel lookup: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var ch channelResponse
	if err := json.NewDecoder(resp.Body).Decode(&ch); err != nil {
		return 0, fmt.Errorf("decode kick channel: %w", err)
	}
	if ch.Chatroom.ID == 0 {
		return 0, fmt.Errorf("kick channel %s has no chatroom", slug)
	}
	return ch.Chatroom.ID, nil
}
