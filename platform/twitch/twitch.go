// Package twitch reads Twitch chat anonymously over IRC.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/platform"
	"github.com/aspicho/stream-chat-reader/twitchapi"
)

const eventBuffer = 256

// Adapter joins one channel per stream with its own anonymous IRC connection.
type Adapter struct {
	// Helix, when set, is used to reject unknown channel names before joining.
	Helix *twitchapi.HelixClient
	// IRCAddress overrides the IRC server (host:port, plain TCP).
	IRCAddress string
}

// New returns an adapter. helix may be nil.
func New(helix *twitchapi.HelixClient) *Adapter { return &Adapter{Helix: helix} }

func (a *Adapter) Platform() message.Platform { return message.Twitch }

// NormalizeChannel lower-cases a channel name and strips a leading '#'.
func NormalizeChannel(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// Open connects and returns once the channel has been joined.
func (a *Adapter) Open(ctx context.Context, channel string) (platform.Stream, error) {
	login := NormalizeChannel(channel)
	if login == "" {
		return nil, errors.New("empty channel name")
	}
	if a.Helix != nil {
		if _, err := a.Helix.GetUser(ctx, login); err != nil {
			return nil, fmt.Errorf("resolve channel: %w", err)
		}
	}

	client := twitchirc.NewAnonymousClient()
	if a.IRCAddress != "" {
		client.IrcAddress = a.IRCAddress
		client.TLS = false
	}

	// The client refuses Disconnect until the server's welcome arrives, so a stream
	// closed mid-handshake is marked abandoned and OnConnect finishes the disconnect.
	var abandoned atomic.Bool
	pipe := platform.NewPipe(eventBuffer, func() error {
		abandoned.Store(true)
		err := client.Disconnect()
		if errors.Is(err, twitchirc.ErrConnectionIsNotOpen) {
			return nil
		}
		return err
	})
	client.OnConnect(func() {
		if abandoned.Load() {
			_ = client.Disconnect()
		}
	})

	joined := make(chan struct{})
	var joinOnce sync.Once
	client.OnSelfJoinMessage(func(m twitchirc.UserJoinMessage) {
		if strings.EqualFold(m.Channel, login) {
			joinOnce.Do(func() { close(joined) })
		}
	})
	client.OnPrivateMessage(func(m twitchirc.PrivateMessage) {
		pipe.Send(privateMessageEvent(m))
	})
	client.OnUserNoticeMessage(func(m twitchirc.UserNoticeMessage) {
		pipe.Send(platform.Event{
			Kind:     platform.EventOther,
			Username: m.User.Name,
			Content:  m.SystemMsg,
			Metadata: map[string]any{"msg_id": m.MsgID},
		})
	})
	client.OnClearChatMessage(func(m twitchirc.ClearChatMessage) {
		pipe.Send(platform.Event{Kind: platform.EventOther, Username: m.TargetUsername, Metadata: map[string]any{"clear_chat": true}})
	})
	client.Join(login)

	connErr := make(chan error, 1)
	go func() {
		err := client.Connect()
		if err == nil || errors.Is(err, twitchirc.ErrClientDisconnected) {
			pipe.End(nil)
		} else {
			slog.Warn("twitch irc connection ended", slog.String("channel", login), slog.Any("err", err), slog.String("component", "twitch"))
			pipe.End(err)
		}
		connErr <- err
	}()

	select {
	case <-joined:
		slog.Info("joined twitch chat", slog.String("channel", login), slog.String("component", "twitch"))
		return pipe, nil
	case err := <-connErr:
		_ = pipe.Close()
		if err == nil {
			err = errors.New("disconnected before joining")
		}
		return nil, err
	case <-ctx.Done():
		_ = pipe.Close()
		return nil, ctx.Err()
	}
}

func privateMessageEvent(m twitchirc.PrivateMessage) platform.Event {
	emotes := make([]string, 0, len(m.Emotes))
	for _, e := range m.Emotes {
		if e != nil {
			emotes = append(emotes, e.Name)
		}
	}
	meta := map[string]any{
		"user_id":      m.User.ID,
		"login":        m.User.Name,
		"display_name": m.User.DisplayName,
		"color":        m.User.Color,
		"badges":       m.User.Badges,
		"role":         role(m.User.Badges),
		"emotes":       emotes,
		"message_id":   m.ID,
		"room_id":      m.RoomID,
	}
	if m.Bits > 0 {
		meta["bits"] = m.Bits
	}
	if m.Action {
		meta["action"] = true
	}
	if n := subMonths(m.Tags["badge-info"]); n > 0 {
		meta["sub_months"] = n
	}
	if m.Tags["returning-chatter"] == "1" {
		meta["returning_chatter"] = true
	}
	if m.Tags["first-msg"] == "1" {
		meta["first_message"] = true
	}

	username := m.User.DisplayName
	if username == "" {
		username = m.User.Name
	}
	return platform.Event{Kind: platform.EventMessage, Username: username, Content: m.Message, Metadata: meta}
}

// role picks the most privileged badge.
func role(badges map[string]int) string {
	for _, r := range []string{"broadcaster", "moderator", "vip", "subscriber"} {
		if _, ok := badges[r]; ok {
			return r
		}
	}
	return "viewer"
}

// subMonths reads the cumulative months from a badge-info tag like "subscriber/14".
func subMonths(badgeInfo string) int {
	for _, part := range strings.Split(badgeInfo, ",") {
		name, val, ok := strings.Cut(part, "/")
		if !ok || name != "subscriber" {
			continue
		}
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return 0
}
