package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_HOST", "HTTP_PORT", "FEED_BUFFER_SIZE", "ADAPTER_CONNECT_TIMEOUT", "KICK_ENABLED", "DB_DSN", "YT_API_KEY", "YT_CLIENT_ID"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %s", cfg.Addr())
	}
	if cfg.FeedBufferSize != 1000 || cfg.MessagesDefaultLimit != 50 || cfg.MessagesMaxLimit != 1000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.AdapterConnectTimeout != 20*time.Second || cfg.MaxConcurrentConnects != 4 {
		t.Errorf("unexpected adapter defaults: %+v", cfg)
	}
	if !cfg.KickEnabled || !cfg.CORSPermissive {
		t.Errorf("kick and permissive cors should default on")
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default DSN")
	}
	if cfg.YouTubeEnabled() {
		t.Errorf("youtube should be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("FEED_BUFFER_SIZE", "16")
	t.Setenv("ADAPTER_CONNECT_TIMEOUT", "3s")
	t.Setenv("KICK_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("YT_API_KEY", "key")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPPort != 9000 || cfg.FeedBufferSize != 16 || cfg.AdapterConnectTimeout != 3*time.Second || cfg.KickEnabled {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.YouTubeEnabled() {
		t.Errorf("api key should enable youtube")
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("STORE_WRITE_TIMEOUT", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "HTTP_PORT") || !strings.Contains(err.Error(), "STORE_WRITE_TIMEOUT") {
		t.Errorf("error should name every bad key: %v", err)
	}
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	t.Setenv("MESSAGES_DEFAULT_LIMIT", "500")
	t.Setenv("MESSAGES_MAX_LIMIT", "100")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when default limit exceeds max")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("HTTP_HOST", "")
	t.Setenv("HTTP_PORT", "9000")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	f, err := ParseFlags("test", []string{"--port", "7000", "--env-file", "custom.env"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := f.Apply(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.HTTPPort != 7000 || cfg.HTTPHost != "0.0.0.0" || f.EnvFile != "custom.env" {
		t.Errorf("unexpected result: port=%d host=%s env=%s", cfg.HTTPPort, cfg.HTTPHost, f.EnvFile)
	}
	if _, err := ParseFlags("test", []string{"--bogus"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestLoadChannelSeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	data := `channels:
  - platform: Twitch
    name: " alice "
    listen: true
  - platform: kick
    name: xqc
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	seeds, err := LoadChannelSeeds(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(seeds) != 2 || seeds[0].Platform != "twitch" || seeds[0].Name != "alice" || !seeds[0].Listen || seeds[1].Listen {
		t.Fatalf("unexpected seeds: %+v", seeds)
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("channels:\n  - platform: twitch\n"), 0o600)
	if _, err := LoadChannelSeeds(bad); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := LoadChannelSeeds(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
