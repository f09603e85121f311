package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aspicho/stream-chat-reader/config"
	"github.com/aspicho/stream-chat-reader/db"
	"github.com/aspicho/stream-chat-reader/message"
)

// AutoStart listens to every stored channel flagged listen=true, concurrently, and returns
// how many tasks were started. Individual failures are logged; only failing to read the
// channel list is an error.
func (s *Service) AutoStart(ctx context.Context) (int, error) {
	channels, err := s.Store.ListChannels(ctx)
	if err != nil {
		return 0, fmt.Errorf("auto start: %w", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for _, ch := range channels {
		if !ch.Listen {
			continue
		}
		wg.Add(1)
		go func(ch message.Channel) {
			defer wg.Done()
			ok, err := s.Listen(ctx, ch.Platform, ch.Name)
			if err != nil {
				slog.Warn("auto start: listen failed", slog.String("platform", ch.Platform.String()), slog.String("channel", ch.Name), slog.Any("err", err), slog.String("component", "chat"))
				return
			}
			if ok {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}(ch)
	}
	wg.Wait()
	slog.Info("auto start complete", slog.Int("started", started), slog.Int("channels", len(channels)), slog.String("component", "chat"))
	return started, nil
}

// SeedChannels stores channels declared in the seed file. Pairs that already exist are
// left as they are. It returns how many were added.
func (s *Service) SeedChannels(ctx context.Context, seeds []config.ChannelSeed) (int, error) {
	added := 0
	for _, seed := range seeds {
		p, err := message.ParsePlatform(seed.Platform)
		if err != nil {
			return added, fmt.Errorf("seed %s/%s: %w", seed.Platform, seed.Name, err)
		}
		_, err = s.AddChannel(ctx, p, seed.Name, seed.Listen)
		switch {
		case errors.Is(err, db.ErrConflict):
			slog.Debug("seed channel exists", slog.String("platform", p.String()), slog.String("channel", seed.Name), slog.String("component", "chat"))
		case err != nil:
			return added, fmt.Errorf("seed %s/%s: %w", p, seed.Name, err)
		default:
			added++
		}
	}
	return added, nil
}
