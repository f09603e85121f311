package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aspicho/stream-chat-reader/chat"
	"github.com/aspicho/stream-chat-reader/db"
	"github.com/aspicho/stream-chat-reader/platform"
	"github.com/aspicho/stream-chat-reader/telemetry"
)

// envelope is the shared response shape: status is "success" or "error".
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", slog.Any("err", err), slog.String("component", "http"))
	}
}

func writeSuccess(w http.ResponseWriter, fields envelope) {
	fields["status"] = "success"
	writeJSON(w, http.StatusOK, fields)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"status": "error", "message": msg})
}

// statusFor maps service errors to HTTP status codes. Adapter and storage failures are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidChannel), errors.Is(err, chat.ErrEmptyContent), errors.Is(err, platform.ErrUnknownPlatform):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// failure logs err against the request and writes the error envelope.
func failure(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	log := requestLogger(r)
	if status >= 500 {
		log.Error(action+" failed", slog.Any("err", err))
	} else {
		log.Info(action+" rejected", slog.Any("err", err), slog.Int("status", status))
	}
	writeError(w, status, fmt.Sprintf("%s: %v", action, err))
}

func requestLogger(r *http.Request) *slog.Logger {
	return telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http"))
}

// parseIntQuery extracts an int parameter from the query string; a missing value yields def.
func parseIntQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
