package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/platform"
)

// FakeStream is a scripted platform stream. Tests push events with Emit and finish it with End.
type FakeStream struct {
	*platform.Pipe
	closed atomic.Bool
}

// Emit queues a chat message event.
func (s *FakeStream) Emit(username, content string, meta map[string]any) bool {
	return s.Send(platform.Event{Kind: platform.EventMessage, Username: username, Content: content, Metadata: meta})
}

// Closed reports whether the consumer closed the stream.
func (s *FakeStream) Closed() bool { return s.closed.Load() }

// FakeAdapter opens FakeStreams and records how often each channel was opened.
type FakeAdapter struct {
	Tag message.Platform

	mu      sync.Mutex
	streams map[string]*FakeStream
	opens   map[string]int
	fail    map[string]error
	hang    map[string]bool
	opened  chan string
}

// NewFakeAdapter returns an adapter for tag.
func NewFakeAdapter(tag message.Platform) *FakeAdapter {
	return &FakeAdapter{
		Tag:     tag,
		streams: make(map[string]*FakeStream),
		opens:   make(map[string]int),
		fail:    make(map[string]error),
		hang:    make(map[string]bool),
		opened:  make(chan string, 64),
	}
}

func (a *FakeAdapter) Platform() message.Platform { return a.Tag }

// Fail makes Open for channel return err.
func (a *FakeAdapter) Fail(channel string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail[channel] = err
}

// Hang makes Open for channel block until its context ends.
func (a *FakeAdapter) Hang(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hang[channel] = true
}

func (a *FakeAdapter) Open(ctx context.Context, channel string) (platform.Stream, error) {
	a.mu.Lock()
	a.opens[channel]++
	err := a.fail[channel]
	hang := a.hang[channel]
	a.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	s := &FakeStream{}
	s.Pipe = platform.NewPipe(64, func() error {
		s.closed.Store(true)
		return nil
	})
	a.mu.Lock()
	a.streams[channel] = s
	a.mu.Unlock()
	select {
	case a.opened <- channel:
	default:
	}
	return s, nil
}

// Stream returns the most recent stream opened for channel.
func (a *FakeAdapter) Stream(channel string) *FakeStream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streams[channel]
}

// Opens returns how many times channel was opened.
func (a *FakeAdapter) Opens(channel string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opens[channel]
}

// Opened delivers channel names as streams are opened.
func (a *FakeAdapter) Opened() <-chan string { return a.opened }
