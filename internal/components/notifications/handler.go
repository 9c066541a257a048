package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// Handler serves the caller's own notifications under /api/notifications.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type ListResponse struct {
	Notifications []*store.Notification `json:"notifications"`
}

type CountResponse struct {
	Unread int64 `json:"unread"`
}

type MarkAllResponse struct {
	Updated int64 `json:"updated"`
}

// List handles GET /api/notifications?limit=<n>.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	var limit int
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			api.WriteBadRequest(w, api.ReasonInvalidField, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.svc.List(r.Context(), caller.UserID, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, ListResponse{Notifications: list})
}

// UnreadCount handles GET /api/notifications/unread-count?type=<type>.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), caller.UserID, r.URL.Query().Get("type"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, CountResponse{Unread: n})
}

// MarkRead handles POST /api/notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	if err := h.svc.MarkRead(r.Context(), caller.UserID, chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	n, err := h.svc.MarkAllRead(r.Context(), caller.UserID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, MarkAllResponse{Updated: n})
}

// Delete handles DELETE /api/notifications/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), caller.UserID, chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		// Other recipients' notifications are indistinguishable from missing ones.
		api.WriteNotFound(w, "notification not found")
	case errors.Is(err, ErrInvalidType):
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
	default:
		appctx.GetLogger(r.Context()).Error("notification request failed", "error", err)
		api.WriteInternalError(w, "notification request failed")
	}
}
