// Package auth provides the authentication gate for HTTP servers.
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
)

// AuthGateConfig configures the auth gate middleware.
type AuthGateConfig struct {
	// RequireAuth returns true if the given path requires authentication.
	// Built by the server from the route group table.
	RequireAuth func(path string) bool

	Log *slog.Logger

	// Sessions resolves opaque session tokens.
	// May be nil only if RequireAuth always returns false (tests only).
	Sessions identity.SessionRepo

	// Tokens verifies bearer JWTs. Nil disables them.
	Tokens *identity.TokenIssuer

	// Users, when set, rejects credentials whose account no longer exists.
	Users identity.UserRepo
}

// NewAuthGate returns a middleware that authenticates requests on protected
// paths and stores the caller in the context. Unprotected paths pass
// through untouched.
func NewAuthGate(cfg AuthGateConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.Component(cfg.Log, "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := identity.ExtractToken(r)
			if token == "" {
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
				return
			}

			caller, err := cfg.resolve(r, token)
			if err != nil {
				appctx.GetLogger(r.Context()).Debug("authentication rejected", "error", err)
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session not found or expired")
				return
			}

			if cfg.Users != nil {
				if _, err := cfg.Users.Get(r.Context(), caller.UserID); err != nil {
					api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session user not found")
					return
				}
			}

			ctx := appctx.WithCaller(r.Context(), caller)
			// Handler logs only; the access log runs outside the gate.
			ctx = appctx.WithLogger(ctx, appctx.GetLogger(ctx).With("user_id", caller.UserID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errNoCredentials = errors.New("no matching credentials")

// resolve verifies JWT-shaped tokens as bearer tokens and looks up
// everything else as a session.
func (cfg AuthGateConfig) resolve(r *http.Request, token string) (appctx.Caller, error) {
	if cfg.Tokens != nil && looksLikeJWT(token) {
		claims, err := cfg.Tokens.Verify(token)
		if err != nil {
			return appctx.Caller{}, err
		}
		return appctx.Caller{UserID: claims.Subject, Role: claims.Role}, nil
	}

	if cfg.Sessions == nil {
		return appctx.Caller{}, errNoCredentials
	}
	session, err := cfg.Sessions.Get(r.Context(), token)
	if err != nil {
		return appctx.Caller{}, err
	}
	if session.IsExpired() {
		return appctx.Caller{}, identity.ErrSessionExpired
	}
	return appctx.Caller{UserID: session.UserID, Role: session.Role}, nil
}

// looksLikeJWT separates compact JWS tokens from session tokens, which are
// UUIDs and never contain dots.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
