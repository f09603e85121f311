package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/platform"
)

var errMissingChannel = errors.New("missing platform or id parameter")

// pathChannel reads {platform} and {id} from the route.
func pathChannel(r *http.Request) (message.Platform, string, error) {
	name := strings.TrimSpace(chi.URLParam(r, "id"))
	raw := chi.URLParam(r, "platform")
	if raw == "" || name == "" {
		return "", "", errMissingChannel
	}
	p, err := message.ParsePlatform(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", platform.ErrUnknownPlatform, raw)
	}
	return p, name, nil
}

// HandleChannelsList returns every stored channel.
func (h *Handlers) HandleChannelsList(w http.ResponseWriter, r *http.Request) {
	chs, err := h.svc.Channels(r.Context())
	if err != nil {
		failure(w, r, "get channels", err)
		return
	}
	writeSuccess(w, envelope{"channels": chs})
}

// HandleChannelAdd stores a channel. ?listen=true marks it for auto-start at boot.
func (h *Handlers) HandleChannelAdd(w http.ResponseWriter, r *http.Request) {
	p, name, err := pathChannel(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listen := false
	if v := r.URL.Query().Get("listen"); v != "" {
		if listen, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "listen must be a boolean")
			return
		}
	}
	ch, err := h.svc.AddChannel(r.Context(), p, name, listen)
	if err != nil {
		failure(w, r, fmt.Sprintf("add channel %s on %s", name, p), err)
		return
	}
	writeSuccess(w, envelope{"message": fmt.Sprintf("Channel %s on %s added", name, p), "channel": ch})
}

// HandleChannelDelete removes a channel definition. A running listener is left alone.
func (h *Handlers) HandleChannelDelete(w http.ResponseWriter, r *http.Request) {
	p, name, err := pathChannel(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := h.svc.DeleteChannel(r.Context(), p, name)
	if err != nil {
		failure(w, r, fmt.Sprintf("delete channel %s on %s", name, p), err)
		return
	}
	writeSuccess(w, envelope{"message": fmt.Sprintf("Channel %s on %s deleted", name, p), "deleted": removed})
}

// HandleListen starts ingesting a channel. Listening to a channel twice is a no-op.
func (h *Handlers) HandleListen(w http.ResponseWriter, r *http.Request) {
	p, name, err := pathChannel(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	started, err := h.svc.Listen(r.Context(), p, name)
	if err != nil {
		failure(w, r, fmt.Sprintf("listen to %s on %s", name, p), err)
		return
	}
	msg := fmt.Sprintf("Started listening to %s on %s", name, p)
	if !started {
		msg = fmt.Sprintf("Already listening to %s on %s", name, p)
	}
	writeSuccess(w, envelope{"message": msg, "started": started})
}

// HandleUnlisten stops ingesting a channel. Stopping a channel that is not running succeeds.
func (h *Handlers) HandleUnlisten(w http.ResponseWriter, r *http.Request) {
	p, name, err := pathChannel(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stopped := h.svc.Unlisten(p, name)
	msg := fmt.Sprintf("Stopped listening to %s on %s", name, p)
	if !stopped {
		msg = fmt.Sprintf("Not listening to %s on %s", name, p)
	}
	writeSuccess(w, envelope{"message": msg, "stopped": stopped})
}

// HandleStatus reports running listeners and feed counters.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, envelope{"data": h.svc.Status()})
}
