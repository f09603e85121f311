package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/platform"
	"github.com/aspicho/stream-chat-reader/telemetry"
)

// errTooManyTransient ends a task whose stream keeps failing without ever yielding an event.
var errTooManyTransient = errors.New("too many consecutive stream errors")

// ingest is the body of one ingestion task. It returns when ctx is canceled, the
// stream ends or fails for good; the stream is always closed on return.
func (s *Service) ingest(ctx context.Context, key message.Key, stream platform.Stream) {
	log := slog.With(slog.String("platform", key.Platform.String()), slog.String("channel", key.Channel), slog.String("component", "ingest"))
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug("stream close", slog.Any("err", err))
		}
	}()
	log.Info("ingestion started")

	failures := 0
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("ingestion stopped")
				return
			}
			switch platform.ClassifyStreamError(err) {
			case platform.ErrorClassEndOfStream:
				log.Info("chat stream ended")
				return
			case platform.ErrorClassTransient:
				failures++
				telemetry.IncIngestError(key.Platform.String(), "stream")
				if failures >= s.opts.MaxConsecutiveErrors {
					log.Error("ingestion aborted", slog.Any("err", errTooManyTransient), slog.Int("failures", failures), slog.Any("last_err", err))
					return
				}
				log.Warn("chat stream error; continuing", slog.Any("err", err))
				continue
			default:
				telemetry.IncIngestError(key.Platform.String(), "stream")
				log.Error("chat stream failed", slog.Any("err", err))
				return
			}
		}
		failures = 0
		if ev.Kind != platform.EventMessage {
			continue
		}
		s.record(ctx, log, key, ev)
	}
}

// record stores one chat event and sends it to the admin feed. An event already read
// from the adapter is stored completely even if the task is being canceled.
func (s *Service) record(ctx context.Context, log *slog.Logger, key message.Key, ev platform.Event) {
	var meta json.RawMessage
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			telemetry.IncIngestError(key.Platform.String(), "encode")
			log.Warn("drop event: encode metadata", slog.Any("err", err))
			return
		}
		meta = b
	}
	m, err := message.New(key.Platform, key.Channel, ev.Username, ev.Content, meta)
	if err != nil {
		telemetry.IncIngestError(key.Platform.String(), "encode")
		log.Warn("drop event", slog.Any("err", err))
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreWriteTimeout)
	defer cancel()
	if err := s.Store.InsertMessage(wctx, m); err != nil {
		telemetry.IncIngestError(key.Platform.String(), "store")
		log.Error("drop event: store insert", slog.Any("err", err), slog.String("id", m.ID.String()))
		return
	}
	s.Hub.Admin.Publish(wctx, m)
	telemetry.IncIngested(key.Platform.String())
}
