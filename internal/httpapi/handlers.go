package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/linkfeed/internal/feed"
	"github.com/nhle/linkfeed/internal/model"
	"github.com/nhle/linkfeed/internal/poller"
)

// ListFeed serves GET /api/feed.
//
// Query parameters: page (>= 1, default 1), limit (1..100, default 20),
// email (narrow to one sender) and senders (comma-separated or repeated,
// the addresses the caller may see; empty means all).
func (h *Handlers) ListFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, ok := intParam(w, q.Get("page"), "page", 1, 1, 0)
	if !ok {
		return
	}
	limit, ok := intParam(w, q.Get("limit"), "limit", feed.DefaultLimit, 1, feed.MaxLimit)
	if !ok {
		return
	}

	result, err := h.deps.Feed.List(r.Context(), feed.Query{
		SenderEmails: splitList(q["senders"]),
		Sender:       strings.TrimSpace(q.Get("email")),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		h.deps.Logger.Error("listing feed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Preview serves GET /api/preview?url=... The preview is null when none
// could be resolved.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	var lp *model.LinkPreview
	if h.deps.Previews != nil {
		lp = h.deps.Previews.Resolve(r.Context(), rawURL)
	}

	writeJSON(w, http.StatusOK, map[string]any{"url": rawURL, "preview": lp})
}

// TriggerPoll serves POST /api/poll, waking the poller for an immediate cycle.
func (h *Handlers) TriggerPoll(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Poller == nil {
		writeError(w, http.StatusServiceUnavailable, "poller is not running")
		return
	}
	h.deps.Poller.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status string         `json:"status"`
	Store  string         `json:"store"`
	Poller *poller.Status `json:"poller,omitempty"`
}

// Health serves GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok"}
	code := http.StatusOK

	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.deps.Store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Store = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	if h.deps.Poller != nil {
		st := h.deps.Poller.Status()
		resp.Poller = &st
	}

	writeJSON(w, code, resp)
}

// intParam parses an optional integer query parameter. hi of zero means
// unbounded. It writes a 400 and returns false when the value is invalid.
func intParam(w http.ResponseWriter, raw, name string, def, lo, hi int) (int, bool) {
	if raw == "" {
		return def, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		msg := name + " must be an integer >= " + strconv.Itoa(lo)
		if hi > 0 {
			msg += " and <= " + strconv.Itoa(hi)
		}
		writeError(w, http.StatusBadRequest, msg)
		return 0, false
	}
	return n, true
}

// splitList flattens repeated and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
