package connections

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/profiles"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// RequestResolver marks the connection request notification from one
// identity to another as handled.
type RequestResolver interface {
	ResolveConnectionRequest(ctx context.Context, recipientID, fromUserID string) (*store.Notification, error)
}

// Handler serves the /api/connections endpoints. The path parameter {id}
// is always the counterpart; the caller comes from the request context.
type Handler struct {
	engine   *Engine
	resolver RequestResolver
}

// NewHandler wires the endpoints. A nil resolver leaves request
// notifications untouched.
func NewHandler(engine *Engine, resolver RequestResolver) *Handler {
	return &Handler{engine: engine, resolver: resolver}
}

// TransitionResponse is the body returned by every mutation.
type TransitionResponse struct {
	PairKey string `json:"pair_key"`
	State   State  `json:"state"`
}

// Request handles POST /api/connections/{id}/request.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	target := chi.URLParam(r, "id")

	res, err := h.engine.Request(r.Context(), caller.UserID, target)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, TransitionResponse{PairKey: res.Record.PairKey, State: res.State})
}

// Accept handles POST /api/connections/{id}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Accept, receivedByCaller)
}

// Reject handles POST /api/connections/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Reject, receivedByCaller)
}

// Cancel handles POST /api/connections/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Cancel, sentByCaller)
}

// Remove handles DELETE /api/connections/{id}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Remove, noRequest)
}

type mutation func(ctx context.Context, currentID, otherID string) (*Result, error)

// requestSide says which participant holds the request notification that a
// mutation settles.
type requestSide int

const (
	noRequest requestSide = iota
	receivedByCaller
	sentByCaller
)

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op mutation, side requestSide) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	other := chi.URLParam(r, "id")
	ctx := r.Context()

	res, err := op(ctx, caller.UserID, other)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	if side != noRequest && h.resolver != nil {
		recipient, from := caller.UserID, other
		if side == sentByCaller {
			recipient, from = other, caller.UserID
		}
		if _, err := h.resolver.ResolveConnectionRequest(ctx, recipient, from); err != nil {
			appctx.GetLogger(ctx).Warn("failed to resolve request notification",
				"recipient_id", recipient, "from_user_id", from, "error", err)
		}
	}

	api.WriteJSON(w, http.StatusOK, TransitionResponse{PairKey: store.PairKey(caller.UserID, other), State: res.State})
}

// Status handles GET /api/connections/{id}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	other := chi.URLParam(r, "id")

	state, err := h.engine.StatusOf(r.Context(), caller.UserID, other)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, TransitionResponse{PairKey: store.PairKey(caller.UserID, other), State: state})
}

// ListResponse wraps the caller's records.
type ListResponse struct {
	Connections []Entry `json:"connections"`
}

// List handles GET /api/connections?status=pending,accepted.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}

	var statuses []store.ConnectionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := store.ConnectionStatus(strings.TrimSpace(s))
			if !st.Valid() {
				api.WriteBadRequest(w, api.ReasonInvalidField, "status must be pending or accepted")
				return
			}
			statuses = append(statuses, st)
		}
	}

	entries, err := h.engine.List(r.Context(), caller.UserID, statuses...)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, ListResponse{Connections: entries})
}

// SuggestionsResponse wraps the suggestion pool.
type SuggestionsResponse struct {
	Suggestions []store.Snapshot `json:"suggestions"`
}

// Suggestions handles GET /api/connections/suggestions?limit=<n>.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}

	var limit int
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			api.WriteBadRequest(w, api.ReasonInvalidField, "limit must be an integer")
			return
		}
		limit = n
	}

	pool, err := h.engine.Suggest(r.Context(), caller.UserID, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: pool})
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrAlreadyExists):
		api.WriteConflict(w, api.ReasonAlreadyExists, "connection already exists")
	case errors.Is(err, ErrInvalidTransition):
		api.WriteConflict(w, api.ReasonInvalidTransition, err.Error())
	case errors.Is(err, ErrNotFound):
		api.WriteNotFound(w, "connection not found")
	case errors.Is(err, profiles.ErrNotFound):
		api.WriteNotFound(w, "profile not found")
	case errors.Is(err, ErrInvalidIdentity), errors.Is(err, profiles.ErrInvalidID):
		api.WriteBadRequest(w, api.ReasonInvalidIdentity, err.Error())
	default:
		appctx.GetLogger(r.Context()).Error("connection request failed", "error", err)
		api.WriteInternalError(w, "connection request failed")
	}
}
