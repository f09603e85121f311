package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aspicho/stream-chat-reader/db"
)

// HandleMessages returns one history page, newest first.
// Query: limit (default from config when absent), before (a millisecond timestamp or a message id).
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	var opts db.ListOptions
	if r.URL.Query().Get("limit") != "" {
		limit, err := parseIntQuery(r, "limit", 0)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = db.PageLimit(limit)
	}
	before, err := db.ParseCursor(r.URL.Query().Get("before"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.Before = before

	msgs, err := h.svc.Messages(r.Context(), opts)
	if err != nil {
		failure(w, r, "get messages", err)
		return
	}
	resp := envelope{"messages": msgs}
	if n := len(msgs); n > 0 {
		resp["next_before"] = msgs[n-1].ID.String()
	}
	writeSuccess(w, resp)
}

// HandlePublish approves a message: it is marked published and sent to public viewers.
func (h *Handlers) HandlePublish(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing id parameter")
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid message id %q", raw))
		return
	}

	res, err := h.svc.Publish(r.Context(), id)
	if err != nil {
		failure(w, r, "publish message "+raw, err)
		return
	}
	requestLogger(r).Info("message published", slog.String("id", raw), slog.Bool("already_published", res.AlreadyPublished))
	writeSuccess(w, envelope{
		"message":           fmt.Sprintf("Message %s published", raw),
		"data":              res.Message,
		"already_published": res.AlreadyPublished,
	})
}

type announceRequest struct {
	Content string `json:"content"`
}

// HandleAnnounce posts a system notice to both feeds.
func (h *Handlers) HandleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be JSON like {\"content\": \"...\"}")
		return
	}
	m, err := h.svc.Announce(r.Context(), req.Content)
	if err != nil {
		failure(w, r, "announce", err)
		return
	}
	writeSuccess(w, envelope{"message": "Announcement sent", "data": m})
}
