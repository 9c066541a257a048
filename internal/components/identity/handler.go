package identity

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

// ExtractToken returns the session or bearer token from the session cookie
// or the Authorization header, in that order.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// Handler serves the /api/auth endpoints.
type Handler struct {
	users      UserRepo
	sessions   SessionRepo
	auth       *UserAuth
	tokens     *TokenIssuer
	bootstrap  *Bootstrap
	sessionTTL time.Duration
}

// NewHandler wires the auth endpoints. tokens may be nil when bearer JWTs
// are disabled; bootstrap may be nil to disable self-registration.
func NewHandler(users UserRepo, sessions SessionRepo, auth *UserAuth, tokens *TokenIssuer, bootstrap *Bootstrap, sessionTTL time.Duration) *Handler {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Handler{
		users:      users,
		sessions:   sessions,
		auth:       auth,
		tokens:     tokens,
		bootstrap:  bootstrap,
		sessionTTL: sessionTTL,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// LoginResponse carries the session token and, when enabled, a bearer JWT.
type LoginResponse struct {
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	AccessToken    string    `json:"access_token,omitempty"`
	AccessTokenExp time.Time `json:"access_token_expires_at,omitzero"`
	User           *User     `json:"user"`
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if h.bootstrap == nil {
		api.WriteError(w, http.StatusForbidden, api.ReasonUnauthorized, "registration is disabled")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "username and password required")
		return
	}

	ctx := r.Context()
	user, err := h.bootstrap.Register(ctx, SeededUser{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrUserExists), errors.Is(err, ErrEmailExists):
		api.WriteConflict(w, api.ReasonAlreadyExists, err.Error())
		return
	case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidPassword):
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	default:
		appctx.GetLogger(ctx).Error("registration failed", "username", req.Username, "error", err)
		api.WriteInternalError(w, "registration failed")
		return
	}

	h.startSession(w, r, user, http.StatusCreated)
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "username and password required")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), h.users, req.Username, req.Password)
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid username or password")
		return
	}

	h.startSession(w, r, user, http.StatusOK)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *User, status int) {
	ctx := r.Context()
	log := appctx.GetLogger(ctx)

	session, err := h.sessions.Create(ctx, user, h.sessionTTL)
	if err != nil {
		log.Error("failed to create session", "user_id", user.ID, "error", err)
		api.WriteInternalError(w, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	resp := LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}
	if h.tokens != nil {
		tok, exp, err := h.tokens.Issue(user)
		if err != nil {
			// The session alone is enough to proceed.
			log.Warn("failed to issue access token", "user_id", user.ID, "error", err)
		} else {
			resp.AccessToken = tok
			resp.AccessTokenExp = exp
		}
	}

	api.WriteJSON(w, status, resp)
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := ExtractToken(r)
	if token == "" {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "no session token provided")
		return
	}

	if err := h.sessions.Delete(r.Context(), token); err != nil {
		appctx.GetLogger(r.Context()).Warn("failed to delete session", "error", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		MaxAge:   -1,
	})

	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.RequireCaller(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), caller.UserID)
	if err != nil {
		api.WriteNotFound(w, "user not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, user)
}
