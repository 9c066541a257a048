package profiles

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves the /api/profiles endpoints.
type Handler struct {
	dir *Directory
}

func NewHandler(dir *Directory) *Handler {
	return &Handler{dir: dir}
}

// Me handles GET /api/profiles/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	h.write(w, r, caller.UserID)
}

// Get handles GET /api/profiles/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.dir.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// UpdateMe handles PATCH /api/profiles/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}

	var patch Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if patch.Empty() {
		api.WriteBadRequest(w, api.ReasonMissingField, "no fields to update")
		return
	}

	p, err := h.dir.Update(r.Context(), caller.UserID, patch)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// ListResponse is one page of the directory.
type ListResponse struct {
	Profiles []*store.Profile `json:"profiles"`
	Next     string           `json:"next,omitempty"`
}

// List handles GET /api/profiles?after=<id>&limit=<n>.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			api.WriteBadRequest(w, api.ReasonInvalidField, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	page, err := h.dir.List(r.Context(), r.URL.Query().Get("after"), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	resp := ListResponse{Profiles: page}
	if len(page) == limit {
		resp.Next = page[len(page)-1].ID
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		api.WriteNotFound(w, "profile not found")
	case errors.Is(err, ErrInvalidID):
		api.WriteBadRequest(w, api.ReasonInvalidIdentity, "invalid profile id")
	case errors.Is(err, ErrInvalid):
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
	default:
		appctx.GetLogger(r.Context()).Error("profile request failed", "error", err)
		api.WriteInternalError(w, "profile request failed")
	}
}
