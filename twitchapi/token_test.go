package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func tokenServer(t *testing.T, token func(n int32) string, expiresIn int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token(n),
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestTokenSource_GetCached(t *testing.T) {
	srv, calls := tokenServer(t, func(int32) string { return "test-token-123" }, 3600)
	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", TokenURL: srv.URL}

	for i := 0; i < 3; i++ {
		tok, err := ts.Get(context.Background())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if tok != "test-token-123" {
			t.Errorf("Get() = %s, want test-token-123", tok)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", calls.Load())
	}
}

func TestTokenSource_RefreshesNearExpiry(t *testing.T) {
	// Tokens inside the one minute buffer are treated as expired.
	srv, calls := tokenServer(t, func(n int32) string {
		if n == 1 {
			return "first"
		}
		return "second"
	}, 30)
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: srv.URL}

	a, err := ts.Get(context.Background())
	if err != nil || a != "first" {
		t.Fatalf("first Get() = %q, %v", a, err)
	}
	b, err := ts.Get(context.Background())
	if err != nil || b != "second" {
		t.Fatalf("second Get() = %q, %v", b, err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 API calls, got %d", calls.Load())
	}
}

func TestTokenSource_Invalidate(t *testing.T) {
	srv, _ := tokenServer(t, func(int32) string { return "fresh" }, 3600)
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: srv.URL}
	ts.SetToken("stale", time.Now().Add(time.Hour))

	ts.Invalidate("other")
	if tok, _ := ts.Get(context.Background()); tok != "stale" {
		t.Fatalf("invalidating a different token must keep the cache, got %q", tok)
	}
	ts.Invalidate("stale")
	if tok, _ := ts.Get(context.Background()); tok != "fresh" {
		t.Fatalf("expected refreshed token, got %q", tok)
	}
}

func TestTokenSource_GetMissingCredentials(t *testing.T) {
	ts := &TokenSource{}
	_, err := ts.Get(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing client id/secret") {
		t.Errorf("Get() error = %v, want error about missing credentials", err)
	}
}

func TestTokenSource_GetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	ts := &TokenSource{ClientID: "bad", ClientSecret: "bad", TokenURL: srv.URL}
	_, err := ts.Get(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid_client") {
		t.Errorf("Get() error = %v, want server body in error", err)
	}
}

func TestTokenSource_GetEmptyToken(t *testing.T) {
	srv, _ := tokenServer(t, func(int32) string { return "" }, 3600)
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: srv.URL}
	_, err := ts.Get(context.Background())
	if err == nil || !strings.Contains(err.Error(), "empty access_token") {
		t.Errorf("Get() error = %v, want error about empty access_token", err)
	}
}
