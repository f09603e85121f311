// Package youtube reads YouTube live chat by polling the Data API.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/platform"
	"github.com/aspicho/stream-chat-reader/youtubeapi"
)

// DefaultMinPoll is the floor applied to the server-suggested polling interval.
const DefaultMinPoll = 2 * time.Second

const maxBackoff = time.Minute

// ChatAPI is the part of youtubeapi.Client the adapter needs.
type ChatAPI interface {
	ResolveLiveChat(ctx context.Context, ref string) (youtubeapi.LiveChat, error)
	ListMessages(ctx context.Context, chatID, pageToken string) (*youtubeapi.ChatPage, error)
}

// Adapter opens one polling stream per channel.
type Adapter struct {
	API     ChatAPI
	MinPoll time.Duration
	// IncludeBacklog emits the messages already in the chat when the stream opens.
	IncludeBacklog bool
}

// New returns an adapter polling no faster than minPoll (DefaultMinPoll when zero).
func New(api ChatAPI, minPoll time.Duration) *Adapter {
	if minPoll <= 0 {
		minPoll = DefaultMinPoll
	}
	return &Adapter{API: api, MinPoll: minPoll}
}

func (a *Adapter) Platform() message.Platform { return message.YouTube }

// Open resolves the live chat behind channel and fetches the first page so that
// a chat which cannot be read fails here rather than on the first Next.
func (a *Adapter) Open(ctx context.Context, channel string) (platform.Stream, error) {
	lc, err := a.API.ResolveLiveChat(ctx, channel)
	if err != nil {
		return nil, err
	}
	page, err := a.API.ListMessages(ctx, lc.ChatID, "")
	if err != nil {
		return nil, fmt.Errorf("read live chat %s: %w", lc.ChatID, err)
	}
	s := &stream{
		api:     a.API,
		chat:    lc,
		minPoll: a.MinPoll,
		done:    make(chan struct{}),
	}
	s.accept(page, a.IncludeBacklog)
	slog.Info("polling youtube live chat", slog.String("channel", channel), slog.String("video_id", lc.VideoID), slog.String("component", "youtube"))
	return s, nil
}

type stream struct {
	api     ChatAPI
	chat    youtubeapi.LiveChat
	minPoll time.Duration

	pending   []*yt.LiveChatMessage
	pageToken string
	nextPoll  time.Time
	offline   bool
	backoff   time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func (s *stream) accept(page *youtubeapi.ChatPage, keep bool) {
	if keep {
		s.pending = append(s.pending, page.Messages...)
	}
	s.pageToken = page.NextPageToken
	s.offline = page.Offline
	s.backoff = 0
	wait := page.PollInterval
	if wait < s.minPoll {
		wait = s.minPoll
	}
	s.nextPoll = time.Now().Add(wait)
}

func (s *stream) Next(ctx context.Context) (platform.Event, error) {
	for {
		select {
		case <-s.done:
			return platform.Event{}, io.EOF
		default:
		}
		if len(s.pending) > 0 {
			m := s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			return convert(m, s.chat.VideoID), nil
		}
		if s.offline {
			return platform.Event{}, io.EOF
		}
		if err := s.wait(ctx); err != nil {
			return platform.Event{}, err
		}

		page, err := s.api.ListMessages(ctx, s.chat.ChatID, s.pageToken)
		switch {
		case err == nil:
			s.accept(page, true)
		case errors.Is(err, youtubeapi.ErrChatEnded):
			return platform.Event{}, io.EOF
		case youtubeapi.IsRetryable(err):
			s.backoff = min(max(2*s.backoff, s.minPoll), maxBackoff)
			s.nextPoll = time.Now().Add(s.backoff)
			return platform.Event{}, platform.Transient(err)
		case ctx.Err() != nil:
			return platform.Event{}, ctx.Err()
		default:
			return platform.Event{}, platform.Fatal(err)
		}
	}
}

func (s *stream) wait(ctx context.Context) error {
	d := time.Until(s.nextPoll)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-s.done:
		return io.EOF
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// convert maps a chat item to an event. Text messages and super chats with a comment
// become chat messages; everything else (memberships, deletions, polls) is EventOther.
func convert(m *yt.LiveChatMessage, videoID string) platform.Event {
	ev := platform.Event{Kind: platform.EventOther, Username: "unknown", Metadata: map[string]any{
		"message_id": m.Id,
		"video_id":   videoID,
	}}
	if a := m.AuthorDetails; a != nil {
		if a.DisplayName != "" {
			ev.Username = a.DisplayName
		}
		ev.Metadata["author_channel_id"] = a.ChannelId
		ev.Metadata["profile_image_url"] = a.ProfileImageUrl
		ev.Metadata["is_moderator"] = a.IsChatModerator
		ev.Metadata["is_owner"] = a.IsChatOwner
		ev.Metadata["is_sponsor"] = a.IsChatSponsor
		ev.Metadata["is_verified"] = a.IsVerified
	}
	sn := m.Snippet
	if sn == nil {
		return ev
	}
	ev.Metadata["type"] = sn.Type
	ev.Metadata["published_at"] = sn.PublishedAt
	ev.Content = sn.DisplayMessage

	switch sn.Type {
	case "textMessageEvent":
		ev.Kind = platform.EventMessage
		if d := sn.TextMessageDetails; d != nil && d.MessageText != "" {
			ev.Content = d.MessageText
		}
	case "superChatEvent":
		if d := sn.SuperChatDetails; d != nil {
			ev.Metadata["amount"] = d.AmountDisplayString
			ev.Metadata["currency"] = d.Currency
			ev.Metadata["amount_micros"] = d.AmountMicros
			if d.UserComment != "" {
				ev.Kind = platform.EventMessage
				ev.Content = d.UserComment
			}
		}
	}
	return ev
}
