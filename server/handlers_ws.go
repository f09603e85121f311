package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aspicho/stream-chat-reader/feed"
	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// HandleClientWS streams published messages to a public viewer.
func (h *Handlers) HandleClientWS(w http.ResponseWriter, r *http.Request) {
	h.serveFeed(w, r, h.svc.Hub.Client)
}

// HandleAdminWS streams every ingested message to a moderator.
func (h *Handlers) HandleAdminWS(w http.ResponseWriter, r *http.Request) {
	h.serveFeed(w, r, h.svc.Hub.Admin)
}

// serveFeed subscribes before upgrading, so everything published after the handshake
// completes reaches the socket. The connection ends when either pump stops.
func (h *Handlers) serveFeed(w http.ResponseWriter, r *http.Request, bus *feed.Bus) {
	log := requestLogger(r).With(slog.String("feed", bus.Name()))
	sub := bus.Subscribe()
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	telemetry.AddWSConnections(bus.Name(), 1)
	defer telemetry.AddWSConnections(bus.Name(), -1)
	log.Info("websocket connected", slog.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go func() {
		defer cancel()
		readPump(conn)
	}()
	writePump(ctx, conn, sub)
	log.Info("websocket closed", slog.Uint64("dropped", sub.Dropped()))
}

// readPump discards anything the peer sends and keeps the read deadline fresh on pongs.
// It returns once the peer goes away.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("websocket read", slog.Any("err", err), slog.String("component", "http"))
			}
			return
		}
	}
}

// writePump sends each feed message as a JSON text frame and pings the peer.
func writePump(ctx context.Context, conn *websocket.Conn, sub *feed.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	msgs := make(chan message.ChatMessage)
	go func() {
		defer close(msgs)
		for {
			m, err := sub.Recv(ctx)
			if err != nil {
				return
			}
			select {
			case msgs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case m, ok := <-msgs:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
