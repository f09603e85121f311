package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/aspicho/stream-chat-reader/message"
)

// RedisRelay carries bus traffic through Redis pub/sub so several server
// instances share one admin feed and one client feed.
type RedisRelay struct {
	client *redis.Client
	prefix string
}

// NewRedisRelay wraps an existing client. Channels are named "<prefix>:<feed>".
func NewRedisRelay(client *redis.Client, prefix string) *RedisRelay {
	if prefix == "" {
		prefix = "chat-feed"
	}
	return &RedisRelay{client: client, prefix: prefix}
}

func (r *RedisRelay) channel(feed string) string { return r.prefix + ":" + feed }

// Publish sends one message to the feed's Redis channel.
func (r *RedisRelay) Publish(ctx context.Context, feed string, m message.ChatMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return r.client.Publish(ctx, r.channel(feed), payload).Err()
}

// Subscribe confirms a subscription to the feed's channel and returns the decoded
// stream. The returned channel closes when ctx is done.
func (r *RedisRelay) Subscribe(ctx context.Context, feed string) (<-chan message.ChatMessage, error) {
	ps := r.client.Subscribe(ctx, r.channel(feed))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan message.ChatMessage)
	go func() {
		defer close(out)
		defer ps.Close()
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var m message.ChatMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					slog.Warn("feed relay: bad payload", slog.String("feed", feed), slog.Any("err", err), slog.String("component", "feed"))
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks the Redis connection.
func (r *RedisRelay) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }
