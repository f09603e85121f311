// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesIngested  *prometheus.CounterVec // platform
	IngestErrors      *prometheus.CounterVec // platform, stage
	MessagesPublished prometheus.Counter
	FeedDropped       *prometheus.CounterVec // feed

	// Histograms (seconds)
	AdapterOpenDuration *prometheus.HistogramVec // platform

	// Gauges
	ActiveListeners prometheus.Gauge
	FeedSubscribers *prometheus.GaugeVec // feed
	WSConnections   *prometheus.GaugeVec // feed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_ingested_total", Help: "Chat messages stored and sent to the admin feed"}, []string{"platform"})
		IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_ingest_errors_total", Help: "Chat events dropped by an ingestion task"}, []string{"platform", "stage"})
		MessagesPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_published_total", Help: "Messages approved onto the client feed"})
		FeedDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_feed_dropped_total", Help: "Messages discarded from slow feed subscribers"}, []string{"feed"})
		AdapterOpenDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "chat_adapter_open_duration_seconds", Help: "Time to establish a platform chat stream", Buckets: prometheus.DefBuckets}, []string{"platform"})
		ActiveListeners = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_active_listeners", Help: "Running ingestion tasks"})
		FeedSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chat_feed_subscribers", Help: "Current feed subscriptions"}, []string{"feed"})
		WSConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chat_ws_connections", Help: "Open websocket connections"}, []string{"feed"})
	})
}

// IncIngested counts one stored chat message.
func IncIngested(platform string) {
	if MessagesIngested != nil {
		MessagesIngested.WithLabelValues(platform).Inc()
	}
}

// IncIngestError counts one dropped event; stage is where it failed (stream, encode, store).
func IncIngestError(platform, stage string) {
	if IngestErrors != nil {
		IngestErrors.WithLabelValues(platform, stage).Inc()
	}
}

// IncPublished counts one message approved onto the client feed.
func IncPublished() {
	if MessagesPublished != nil {
		MessagesPublished.Inc()
	}
}

// IncFeedDropped counts one message lost by a lagging subscriber.
func IncFeedDropped(feed string) {
	if FeedDropped != nil {
		FeedDropped.WithLabelValues(feed).Inc()
	}
}

// SetActiveListeners records the registry size.
func SetActiveListeners(n int) {
	if ActiveListeners != nil {
		ActiveListeners.Set(float64(n))
	}
}

// AddFeedSubscribers moves the subscriber gauge for feed by delta.
func AddFeedSubscribers(feed string, delta int) {
	if FeedSubscribers != nil {
		FeedSubscribers.WithLabelValues(feed).Add(float64(delta))
	}
}

// AddWSConnections moves the websocket gauge for feed by delta.
func AddWSConnections(feed string, delta int) {
	if WSConnections != nil {
		WSConnections.WithLabelValues(feed).Add(float64(delta))
	}
}

// ObserveAdapterOpen records how long opening a platform stream took.
func ObserveAdapterOpen(platform string, d time.Duration) {
	if AdapterOpenDuration != nil {
		AdapterOpenDuration.WithLabelValues(platform).Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
