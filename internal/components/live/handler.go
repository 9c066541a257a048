package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
)

// DefaultPingInterval keeps idle event streams open through proxies.
const DefaultPingInterval = 25 * time.Second

// Handler serves live views over HTTP.
type Handler struct {
	feed         *Feed
	pingInterval time.Duration
	log          *slog.Logger
}

func NewHandler(feed *Feed, pingInterval time.Duration, log *slog.Logger) *Handler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Handler{feed: feed, pingInterval: pingInterval, log: logutil.NoopIfNil(log)}
}

// HandleView handles GET /api/live/view.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	v, err := h.feed.View(r.Context(), caller.UserID)
	if err != nil {
		appctx.GetLogger(r.Context()).Error("failed to compute live view", "error", err)
		api.WriteInternalError(w, "failed to compute view")
		return
	}
	api.WriteJSON(w, http.StatusOK, v)
}

// HandleStream handles GET /live/stream as Server-Sent Events: one "view"
// event per delivered view, and a comment line every ping interval.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := appctx.GetLogger(ctx)

	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut the stream; this connection has none.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("failed to clear write deadline", "error", err)
	}

	views, err := h.feed.Subscribe(ctx, caller.UserID)
	if err != nil {
		log.Error("failed to subscribe to live view", "error", err)
		api.WriteInternalError(w, "live updates unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Warn("streaming not supported", "error", err)
		return
	}

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	log.Debug("live stream opened", "user_id", caller.UserID)
	for {
		select {
		case <-ctx.Done():
			log.Debug("live stream closed", "user_id", caller.UserID)
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				log.Error("failed to encode live view", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: view\ndata: %s\n\n", data); err != nil {
				return
			}
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
