// Package twitchapi contains minimal Twitch Helix helpers used to validate
// channel names before joining their chat, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned when Helix knows no user with the requested login.
var ErrUserNotFound = errors.New("user not found")

// HelixClient provides the few Helix calls the chat reader needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	BaseURL        string
	HTTPClient     *http.Client
}

// User is the subset of a Helix user record we keep.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultBaseURL
}

// GetUser resolves a login name. A 401 invalidates the cached app token and retries once.
func (hc *HelixClient) GetUser(ctx context.Context, login string) (User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return User{}, fmt.Errorf("login empty")
	}
	var body struct {
		Data []User `json:"data"`
	}
	for attempt := 0; attempt < 2; attempt++ {
		tok, err := hc.AppTokenSource.Get(ctx)
		if err != nil {
			return User{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/users", nil)
		if err != nil {
			return User{}, err
		}
		q := req.URL.Query()
		q.Set("login", login)
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Client-Id", hc.ClientID)
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := hc.http().Do(req)
		if err != nil {
			return User{}, err
		}
		status := resp.Status
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			drain(resp)
			hc.AppTokenSource.Invalidate(tok)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			drain(resp)
			return User{}, fmt.Errorf("helix users: %s: %s", status, strings.TrimSpace(string(b)))
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		drain(resp)
		if err != nil {
			return User{}, err
		}
		break
	}
	if len(body.Data) == 0 {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}
	return body.Data[0], nil
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	u, err := hc.GetUser(ctx, login)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
