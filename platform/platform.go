// Package platform defines the boundary between the ingestion pipeline and the
// streaming sites. An Adapter opens a Stream of normalized chat events for one
// channel; protocol details stay inside the adapter implementations in the
// twitch, youtube and kick subpackages.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aspicho/stream-chat-reader/message"
)

// ErrUnknownPlatform is returned for a tag with no registered adapter.
var ErrUnknownPlatform = errors.New("unknown platform")

// EventKind separates chat lines from everything else a platform emits
// (subscriptions, raids, deletions...).
type EventKind int

const (
	EventMessage EventKind = iota
	EventOther
)

// Event is one normalized item from a platform stream.
type Event struct {
	Kind     EventKind
	Username string
	Content  string
	Metadata map[string]any
}

// Stream is a lazy, possibly infinite sequence of events.
// Next returns io.EOF once the platform ends the stream.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Adapter connects to one streaming platform.
type Adapter interface {
	Platform() message.Platform
	// Open establishes the stream for channel or fails with the connection error.
	Open(ctx context.Context, channel string) (Stream, error)
}

// AdapterError reports that a stream could not be established.
type AdapterError struct {
	Platform message.Platform
	Channel  string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: channel %q: %v", e.Platform, e.Channel, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Set is the fixed collection of adapters available to the server.
type Set struct {
	adapters map[message.Platform]Adapter
}

// NewSet registers adapters by their platform tag; a later adapter for the same tag wins.
func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[message.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			s.adapters[a.Platform()] = a
		}
	}
	return s
}

// Lookup returns the adapter for p.
func (s *Set) Lookup(p message.Platform) (Adapter, error) {
	if a, ok := s.adapters[p]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
}

// Platforms lists the registered tags in sorted order.
func (s *Set) Platforms() []message.Platform {
	out := make([]message.Platform, 0, len(s.adapters))
	for p := range s.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
