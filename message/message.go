// Package message defines the chat message and channel records shared by every
// component: adapters produce them, the store persists them and the feeds carry them.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform is the tag identifying where a message came from.
type Platform string

const (
	Twitch  Platform = "twitch"
	YouTube Platform = "youtube"
	Kick    Platform = "kick"
	// System marks notices generated by the server itself. It is not listenable.
	System Platform = "system"
)

// ParsePlatform normalizes a tag from a URL or config file.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Twitch, YouTube, Kick, System:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

func (p Platform) String() string { return string(p) }

// ChatMessage is one chat line. ID is a UUIDv7, so ids sort by creation time.
// Timestamp is milliseconds since the Unix epoch at ingestion.
type ChatMessage struct {
	ID        uuid.UUID       `json:"id"`
	Platform  Platform        `json:"platform"`
	Channel   string          `json:"channel"`
	Username  string          `json:"username"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Published bool            `json:"published"`
}

// New builds an unpublished message stamped with a fresh UUIDv7. Timestamp is the
// millisecond embedded in the id, so ordering by timestamp never disagrees with id order.
func New(platform Platform, channel, username, content string, metadata json.RawMessage) (ChatMessage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return ChatMessage{}, fmt.Errorf("generate message id: %w", err)
	}
	return ChatMessage{
		ID:        id,
		Platform:  platform,
		Channel:   channel,
		Username:  username,
		Content:   content,
		Metadata:  metadata,
		Timestamp: IDMillis(id),
	}, nil
}

// IDMillis returns the Unix millisecond encoded in a version 7 id.
func IDMillis(id uuid.UUID) int64 {
	sec, nsec := id.Time().UnixTime()
	return sec*1000 + nsec/int64(time.Millisecond)
}

// NewSystem builds a server notice. Notices skip moderation and are born published.
func NewSystem(content string) (ChatMessage, error) {
	m, err := New(System, string(System), string(System), content, nil)
	if err != nil {
		return ChatMessage{}, err
	}
	m.Published = true
	return m, nil
}

// Time returns the ingestion time.
func (m ChatMessage) Time() time.Time { return time.UnixMilli(m.Timestamp) }

// Channel is a configured (platform, name) pair. Listen requests auto-start at boot.
type Channel struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Platform Platform  `json:"platform"`
	Listen   bool      `json:"listen"`
}

// Key identifies one listener: a platform plus a channel name.
type Key struct {
	Platform Platform `json:"platform"`
	Channel  string   `json:"channel"`
}

func (k Key) String() string { return string(k.Platform) + "/" + k.Channel }
