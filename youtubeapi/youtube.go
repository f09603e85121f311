// Package youtubeapi wraps the YouTube Data API for reading live chat: it finds the
// live chat behind a channel, handle or video and pages through its messages.
// Authentication is either a plain API key or an OAuth client with a refresh token.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/aspicho/stream-chat-reader/config"
)

var (
	// ErrNoCredentials is returned when neither an API key nor an OAuth refresh token is configured.
	ErrNoCredentials = errors.New("youtube: no credentials configured")
	// ErrNotLive is returned when the channel or video has no active or upcoming live chat.
	ErrNotLive = errors.New("youtube: no live chat available")
	// ErrChatEnded is returned once the broadcast's chat has closed.
	ErrChatEnded = errors.New("youtube: live chat ended")
)

// ReadOnlyScope is the OAuth scope needed to read live chat.
const ReadOnlyScope = "https://www.googleapis.com/auth/youtube.readonly"

// Client reads live chat through the Data API.
type Client struct {
	svc *yt.Service
}

// New builds a client from cfg. An API key wins over OAuth credentials.
// Extra options (endpoint, http client) are appended, mainly for tests.
func New(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*Client, error) {
	var base []option.ClientOption
	switch {
	case cfg.YTAPIKey != "":
		base = append(base, option.WithAPIKey(cfg.YTAPIKey))
	case cfg.YTClientID != "" && cfg.YTClientSecret != "" && cfg.YTRefreshToken != "":
		oc := &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{ReadOnlyScope},
		}
		ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.YTRefreshToken})
		base = append(base, option.WithTokenSource(ts))
	default:
		if len(opts) == 0 {
			return nil, ErrNoCredentials
		}
	}
	svc, err := yt.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// LiveChat identifies the chat attached to one broadcast.
type LiveChat struct {
	VideoID string
	ChatID  string
}

// ResolveLiveChat accepts a channel id ("UC..."), a handle ("@name" or bare name)
// or a video reference ("video:<id>"). For channels the live broadcast is preferred,
// then the next upcoming one.
func (c *Client) ResolveLiveChat(ctx context.Context, ref string) (LiveChat, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return LiveChat{}, errors.New("youtube: empty channel reference")
	}
	if vid, ok := strings.CutPrefix(ref, "video:"); ok {
		return c.liveChatForVideo(ctx, vid)
	}

	channelID := ref
	if !strings.HasPrefix(ref, "UC") {
		id, err := c.channelIDForHandle(ctx, ref)
		if err != nil {
			return LiveChat{}, err
		}
		channelID = id
	}

	for _, eventType := range []string{"live", "upcoming"} {
		res, err := c.svc.Search.List([]string{"id"}).
			ChannelId(channelID).
			EventType(eventType).
			Type("video").
			Order("date").
			MaxResults(1).
			Context(ctx).
			Do()
		if err != nil {
			return LiveChat{}, fmt.Errorf("youtube search %s broadcasts: %w", eventType, err)
		}
		for _, item := range res.Items {
			if item.Id != nil && item.Id.VideoId != "" {
				return c.liveChatForVideo(ctx, item.Id.VideoId)
			}
		}
	}
	return LiveChat{}, fmt.Errorf("%w: channel %s", ErrNotLive, channelID)
}

func (c *Client) channelIDForHandle(ctx context.Context, handle string) (string, error) {
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	res, err := c.svc.Channels.List([]string{"id"}).ForHandle(handle).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube channel lookup: %w", err)
	}
	if len(res.Items) == 0 {
		return "", fmt.Errorf("youtube channel %s not found", handle)
	}
	return res.Items[0].Id, nil
}

func (c *Client) liveChatForVideo(ctx context.Context, videoID string) (LiveChat, error) {
	res, err := c.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return LiveChat{}, fmt.Errorf("youtube video lookup: %w", err)
	}
	if len(res.Items) == 0 {
		return LiveChat{}, fmt.Errorf("youtube video %s not found", videoID)
	}
	d := res.Items[0].LiveStreamingDetails
	if d == nil || d.ActiveLiveChatId == "" {
		return LiveChat{}, fmt.Errorf("%w: video %s", ErrNotLive, videoID)
	}
	return LiveChat{VideoID: videoID, ChatID: d.ActiveLiveChatId}, nil
}

// ChatPage is one poll of a live chat.
type ChatPage struct {
	Messages      []*yt.LiveChatMessage
	NextPageToken string
	PollInterval  time.Duration
	// Offline is set when the broadcast has gone offline; no further pages will follow.
	Offline bool
}

// ListMessages fetches the page after pageToken (empty for the most recent backlog).
// A closed chat is reported as ErrChatEnded.
func (c *Client) ListMessages(ctx context.Context, chatID, pageToken string) (*ChatPage, error) {
	call := c.svc.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		if IsChatEnded(err) {
			return nil, fmt.Errorf("%w: %v", ErrChatEnded, err)
		}
		return nil, err
	}
	return &ChatPage{
		Messages:      res.Items,
		NextPageToken: res.NextPageToken,
		PollInterval:  time.Duration(res.PollingIntervalMillis) * time.Millisecond,
		Offline:       res.OfflineAt != "",
	}, nil
}

// IsChatEnded reports whether err says the chat is gone for good.
func IsChatEnded(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusNotFound {
		return true
	}
	for _, e := range gerr.Errors {
		switch e.Reason {
		case "liveChatEnded", "liveChatNotFound", "liveChatDisabled":
			return true
		}
	}
	return false
}

// IsRetryable reports whether err is a quota, rate or server-side failure worth polling again after.
func IsRetryable(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
		return true
	}
	for _, e := range gerr.Errors {
		if e.Reason == "rateLimitExceeded" {
			return true
		}
	}
	return false
}
