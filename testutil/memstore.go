package testutil

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aspicho/stream-chat-reader/db"
	"github.com/aspicho/stream-chat-reader/message"
)

// MemStore is an in-memory store with the same contract as db.Store.
type MemStore struct {
	mu       sync.Mutex
	messages []message.ChatMessage
	channels []message.Channel

	insertErr error
	pingErr   error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore { return &MemStore{} }

// SetInsertErr makes every InsertMessage fail with err until it is reset to nil.
func (s *MemStore) SetInsertErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertErr = err
}

// SetPingErr sets the error Ping returns.
func (s *MemStore) SetPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *MemStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *MemStore) InsertMessage(_ context.Context, m message.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return &db.StorageError{Op: "insert message", Err: s.insertErr}
	}
	for _, existing := range s.messages {
		if existing.ID == m.ID {
			return &db.StorageError{Op: "insert message", Err: fmt.Errorf("%w: messages_pkey", db.ErrConflict)}
		}
	}
	s.messages = append(s.messages, m)
	return nil
}

func (s *MemStore) ListMessages(_ context.Context, opts db.ListOptions) ([]message.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := db.DefaultListLimit
	if opts.Limit != nil {
		limit = min(*opts.Limit, db.MaxListLimit)
	}
	limit = max(limit, 0)

	out := []message.ChatMessage{}
	for _, m := range s.messages {
		if c := opts.Before; c != nil {
			if c.ID != uuid.Nil {
				if bytes.Compare(m.ID[:], c.ID[:]) >= 0 {
					continue
				}
			} else if m.Timestamp >= c.Timestamp {
				continue
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the stored copy of id.
func (s *MemStore) Get(id uuid.UUID) (message.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return message.ChatMessage{}, false
}

// Messages returns every stored message in insertion order.
func (s *MemStore) Messages() []message.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.ChatMessage(nil), s.messages...)
}

func (s *MemStore) MarkPublished(_ context.Context, id uuid.UUID) (message.ChatMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			already := s.messages[i].Published
			s.messages[i].Published = true
			return s.messages[i], already, nil
		}
	}
	return message.ChatMessage{}, false, db.ErrNotFound
}

func (s *MemStore) AddChannel(_ context.Context, name string, p message.Platform, listen bool) (message.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if ch.Platform == p && ch.Name == name {
			return message.Channel{}, &db.StorageError{Op: "add channel", Err: fmt.Errorf("%w: channels_platform_name_key", db.ErrConflict)}
		}
	}
	id, err := uuid.NewV7()
	if err != nil {
		return message.Channel{}, err
	}
	ch := message.Channel{ID: id, Name: name, Platform: p, Listen: listen}
	s.channels = append(s.channels, ch)
	return ch, nil
}

func (s *MemStore) DeleteChannel(_ context.Context, p message.Platform, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ch := range s.channels {
		if ch.Platform == p && ch.Name == name {
			s.channels = append(s.channels[:i], s.channels[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListChannels(context.Context) ([]message.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]message.Channel{}, s.channels...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
