// Package server exposes the chat reader over HTTP: the moderation API under /api,
// the client and admin websocket feeds, health probes, metrics and the static UI.
// It injects correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aspicho/stream-chat-reader/chat"
)

// Options configures the router.
type Options struct {
	// StaticDir is served for any path no route matches, when it exists.
	StaticDir string
	CORS      CORSConfig
	// Ready lists extra readiness checks besides the store ping.
	Ready []ReadyCheck
}

// NewMux returns the HTTP handler with all routes.
func NewMux(svc *chat.Service, opts Options) http.Handler {
	h := NewHandlers(svc, opts)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withCorrelation)
	r.Use(withCORS(opts.CORS))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ws", h.HandleClientWS)
		r.Get("/admin/ws", h.HandleAdminWS)

		r.Get("/messages", h.HandleMessages)
		r.Post("/publish", h.HandlePublish)
		r.Post("/publish/", h.HandlePublish)
		r.Post("/publish/{id}", h.HandlePublish)
		r.Post("/announce", h.HandleAnnounce)

		r.Get("/channels", h.HandleChannelsList)
		r.Post("/channels/{platform}/{id}", h.HandleChannelAdd)
		r.Delete("/channels/{platform}/{id}", h.HandleChannelDelete)

		r.Post("/listen/{platform}/{id}", h.HandleListen)
		r.Post("/unlisten/{platform}/{id}", h.HandleUnlisten)
		r.Get("/status", h.HandleStatus)
	})

	if dir := opts.StaticDir; dir != "" {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			r.NotFound(http.FileServer(http.Dir(dir)).ServeHTTP)
		} else {
			slog.Info("static dir not found; UI disabled", slog.String("dir", dir), slog.String("component", "http"))
		}
	}
	return r
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, handler http.Handler, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
