package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aspicho/stream-chat-reader/chat"
)

// ReadyCheck is one dependency probed by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	svc      *chat.Service
	checks   []ReadyCheck
	upgrader websocket.Upgrader
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(svc *chat.Service, opts Options) *Handlers {
	cors := opts.CORS
	return &Handlers{
		svc:    svc,
		checks: opts.Ready,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return cors.Allows(r.Header.Get("Origin"))
			},
		},
	}
}
