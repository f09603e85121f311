package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/aspicho/stream-chat-reader/db"
	"github.com/aspicho/stream-chat-reader/feed"
	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/platform"
	"github.com/aspicho/stream-chat-reader/telemetry"
)

var (
	// ErrInvalidChannel is returned for an empty channel name.
	ErrInvalidChannel = errors.New("channel name is required")
	// ErrEmptyContent is returned when an announcement has no text.
	ErrEmptyContent = errors.New("content is required")
)

// Store is the persistence the service needs; *db.Store implements it.
type Store interface {
	Ping(ctx context.Context) error
	InsertMessage(ctx context.Context, m message.ChatMessage) error
	ListMessages(ctx context.Context, opts db.ListOptions) ([]message.ChatMessage, error)
	MarkPublished(ctx context.Context, id uuid.UUID) (message.ChatMessage, bool, error)
	AddChannel(ctx context.Context, name string, p message.Platform, listen bool) (message.Channel, error)
	DeleteChannel(ctx context.Context, p message.Platform, name string) (bool, error)
	ListChannels(ctx context.Context) ([]message.Channel, error)
}

// Options tunes the service. Zero values select the defaults.
type Options struct {
	ConnectTimeout        time.Duration
	MaxConcurrentConnects int
	StoreWriteTimeout     time.Duration
	// MaxConsecutiveErrors ends a task after this many transient stream errors in a row.
	MaxConsecutiveErrors int
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 20 * time.Second
	}
	if o.MaxConcurrentConnects <= 0 {
		o.MaxConcurrentConnects = platform.DefaultMaxConcurrentConnects
	}
	if o.StoreWriteTimeout <= 0 {
		o.StoreWriteTimeout = 5 * time.Second
	}
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = 50
	}
	return o
}

// Service is the application context shared by the HTTP handlers and the boot sequence.
type Service struct {
	Store    Store
	Hub      *feed.Hub
	Adapters *platform.Set
	Registry *Registry

	limiter *platform.Limiter
	opts    Options
}

// NewService wires the pieces together.
func NewService(store Store, hub *feed.Hub, adapters *platform.Set, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		Store:    store,
		Hub:      hub,
		Adapters: adapters,
		Registry: NewRegistry(),
		limiter:  platform.NewLimiter(opts.MaxConcurrentConnects),
		opts:     opts,
	}
}

// Listen starts ingesting (p, name). It returns started=false when the pair is already
// being ingested. Adapter failures come back as *platform.AdapterError.
func (s *Service) Listen(ctx context.Context, p message.Platform, name string) (started bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrInvalidChannel
	}
	if p == message.System {
		return false, fmt.Errorf("%w: %q", platform.ErrUnknownPlatform, p)
	}
	adapter, err := s.Adapters.Lookup(p)
	if err != nil {
		return false, err
	}
	key := message.Key{Platform: p, Channel: name}

	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.listen", telemetry.ChatAttrs(p.String(), name)...)
	defer span.End()

	started, err = s.Registry.Start(ctx, key, func(taskCtx context.Context) (func(context.Context), error) {
		openCtx, cancel := context.WithTimeout(trace.ContextWithSpan(taskCtx, span), s.opts.ConnectTimeout)
		defer cancel()
		if !s.limiter.Acquire(openCtx) {
			return nil, &platform.AdapterError{Platform: p, Channel: name, Err: fmt.Errorf("waiting for a connect slot: %w", openCtx.Err())}
		}
		defer s.limiter.Release()

		begin := time.Now()
		stream, err := adapter.Open(openCtx, name)
		telemetry.ObserveAdapterOpen(p.String(), time.Since(begin))
		if err != nil {
			return nil, &platform.AdapterError{Platform: p, Channel: name, Err: err}
		}
		return func(runCtx context.Context) { s.ingest(runCtx, key, stream) }, nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	telemetry.SetSpanSuccess(span)
	if started {
		slog.Info("listening", slog.String("key", key.String()), slog.String("component", "chat"))
	}
	return started, nil
}

// Unlisten stops ingesting (p, name). It reports whether a task was running;
// stopping an unknown pair is not an error.
func (s *Service) Unlisten(p message.Platform, name string) bool {
	key := message.Key{Platform: p, Channel: strings.TrimSpace(name)}
	stopped := s.Registry.Stop(key)
	if stopped {
		slog.Info("stopped listening", slog.String("key", key.String()), slog.String("component", "chat"))
	}
	return stopped
}

// PublishResult is the canonical published row.
type PublishResult struct {
	Message          message.ChatMessage
	AlreadyPublished bool
}

// Publish approves a message for public viewers. The flag is set durably before the
// row goes out on the client feed. Publishing twice leaves the row unchanged and
// sends it again. An unknown id returns db.ErrNotFound and touches no feed.
func (s *Service) Publish(ctx context.Context, id uuid.UUID) (PublishResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.publish")
	defer span.End()

	m, already, err := s.Store.MarkPublished(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return PublishResult{}, err
	}
	s.Hub.Client.Publish(ctx, m)
	if !already {
		telemetry.IncPublished()
	}
	telemetry.SetSpanSuccess(span)
	return PublishResult{Message: m, AlreadyPublished: already}, nil
}

// Announce stores a system notice, born published, and sends it on both feeds.
func (s *Service) Announce(ctx context.Context, content string) (message.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return message.ChatMessage{}, ErrEmptyContent
	}
	m, err := message.NewSystem(content)
	if err != nil {
		return message.ChatMessage{}, err
	}
	if err := s.Store.InsertMessage(ctx, m); err != nil {
		return message.ChatMessage{}, err
	}
	s.Hub.Broadcast(ctx, m)
	return m, nil
}

// Messages returns one history page, newest first.
func (s *Service) Messages(ctx context.Context, opts db.ListOptions) ([]message.ChatMessage, error) {
	return s.Store.ListMessages(ctx, opts)
}

// AddChannel stores a channel definition. A duplicate pair fails with db.ErrConflict.
func (s *Service) AddChannel(ctx context.Context, p message.Platform, name string, listen bool) (message.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return message.Channel{}, ErrInvalidChannel
	}
	if p == message.System {
		return message.Channel{}, fmt.Errorf("%w: %q", platform.ErrUnknownPlatform, p)
	}
	return s.Store.AddChannel(ctx, name, p, listen)
}

// DeleteChannel removes the definition. A running listener for it keeps running.
func (s *Service) DeleteChannel(ctx context.Context, p message.Platform, name string) (bool, error) {
	return s.Store.DeleteChannel(ctx, p, strings.TrimSpace(name))
}

// Channels lists stored channel definitions.
func (s *Service) Channels(ctx context.Context) ([]message.Channel, error) {
	return s.Store.ListChannels(ctx)
}

// Status is a diagnostics snapshot.
type Status struct {
	Listeners  []message.Key             `json:"listeners"`
	Feeds      map[string]feed.BusStats `json:"feeds"`
	Platforms  []message.Platform        `json:"platforms"`
	Connecting int                       `json:"connecting"`
}

// Status reports running listeners and feed counters.
func (s *Service) Status() Status {
	return Status{
		Listeners:  s.Registry.Active(),
		Feeds:      s.Hub.Stats(),
		Platforms:  s.Adapters.Platforms(),
		Connecting: s.limiter.Active(),
	}
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error { return s.Store.Ping(ctx) }

// Shutdown stops every listener and waits for the tasks to unwind or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error { return s.Registry.Shutdown(ctx) }
