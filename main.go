// Command stream-chat-reader reads live chat from Twitch, YouTube and Kick, stores every
// message and serves two websocket feeds: an admin feed with everything ingested and a
// client feed with only the messages a moderator published.
// It:
//   - Loads configuration (env, optional .env file, --host/--port flags) and initializes logging.
//   - Connects to Postgres and runs migrations.
//   - Registers the platform adapters whose credentials are present.
//   - Seeds channels from CHANNELS_FILE and starts listeners for channels marked listen.
//   - Serves the API, feeds, /healthz, /readyz, /metrics and the static UI.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/aspicho/stream-chat-reader/chat"
	"github.com/aspicho/stream-chat-reader/config"
	"github.com/aspicho/stream-chat-reader/db"
	"github.com/aspicho/stream-chat-reader/feed"
	"github.com/aspicho/stream-chat-reader/platform"
	"github.com/aspicho/stream-chat-reader/platform/kick"
	"github.com/aspicho/stream-chat-reader/platform/twitch"
	"github.com/aspicho/stream-chat-reader/platform/youtube"
	"github.com/aspicho/stream-chat-reader/server"
	"github.com/aspicho/stream-chat-reader/telemetry"
	"github.com/aspicho/stream-chat-reader/twitchapi"
	"github.com/aspicho/stream-chat-reader/youtubeapi"
)

func main() {
	flags, err := config.ParseFlags(os.Args[0], os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(flags.EnvFile)

	setupLogging()

	cfg, err := config.Load()
	if err == nil {
		err = flags.Apply(cfg)
	}
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("stream-chat-reader", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", slog.Any("err", err))
		stop()
		shutdownTracing()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run(ctx context.Context, cfg *config.Config) error {
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; databases created by the idempotent schema fall back to it.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			return err
		}
	}
	store := db.NewStore(database)
	store.SetLimits(cfg.MessagesDefaultLimit, cfg.MessagesMaxLimit)

	var ready []server.ReadyCheck
	var relay *feed.RedisRelay
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		relay = feed.NewRedisRelay(rdb, cfg.RedisChannelPrefix)
		ready = append(ready, server.ReadyCheck{Name: "redis", Check: relay.Ping})
	}
	hub := feed.NewHub(cfg.FeedBufferSize, relay)
	if err := hub.Start(ctx); err != nil {
		return err
	}

	adapters, err := buildAdapters(ctx, cfg)
	if err != nil {
		return err
	}
	svc := chat.NewService(store, hub, adapters, chat.Options{
		ConnectTimeout:        cfg.AdapterConnectTimeout,
		MaxConcurrentConnects: cfg.MaxConcurrentConnects,
		StoreWriteTimeout:     cfg.StoreWriteTimeout,
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := svc.Shutdown(sctx); err != nil {
			slog.Warn("listeners did not stop in time", slog.Any("err", err))
		}
	}()

	if cfg.ChannelsFile != "" {
		seeds, err := config.LoadChannelSeeds(cfg.ChannelsFile)
		if err != nil {
			return err
		}
		n, err := svc.SeedChannels(ctx, seeds)
		if err != nil {
			return err
		}
		slog.Info("channels seeded", slog.Int("added", n), slog.String("file", cfg.ChannelsFile))
	}

	// Listeners connect in the background so a slow platform does not delay the API.
	go func() {
		if _, err := svc.AutoStart(ctx); err != nil {
			slog.Error("auto-start failed", slog.Any("err", err), slog.String("component", "chat_auto"))
		}
	}()

	if os.Getenv("ENABLE_PPROF") == "1" {
		go func() {
			srv := &http.Server{Addr: "localhost:6060", ReadHeaderTimeout: 5 * time.Second}
			slog.Info("pprof listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("pprof server stopped", slog.Any("err", err))
			}
		}()
	}

	mux := server.NewMux(svc, server.Options{
		StaticDir: cfg.StaticDir,
		CORS:      server.CORSFromConfig(cfg),
		Ready:     ready,
	})
	return server.Start(ctx, mux, cfg.Addr())
}

// buildAdapters registers Twitch always (IRC reading is anonymous) and the other
// platforms when their credentials or switches are present.
func buildAdapters(ctx context.Context, cfg *config.Config) (*platform.Set, error) {
	var helix *twitchapi.HelixClient
	if cfg.TwitchHelixEnabled() {
		helix = &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:       cfg.TwitchClientID,
		}
		slog.Info("twitch channel validation enabled", slog.String("component", "twitch"))
	}
	adapters := []platform.Adapter{twitch.New(helix)}

	if cfg.YouTubeEnabled() {
		yc, err := youtubeapi.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, youtube.New(yc, cfg.YTPollMinInterval))
	} else {
		slog.Info("youtube credentials not configured; youtube disabled", slog.String("component", "youtube"))
	}

	if cfg.KickEnabled {
		adapters = append(adapters, kick.New())
	}

	set := platform.NewSet(adapters...)
	slog.Info("platform adapters registered", slog.Any("platforms", set.Platforms()))
	return set, nil
}
