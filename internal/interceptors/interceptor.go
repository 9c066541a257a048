// Package interceptors holds named HTTP middleware that services attach to
// their routes through configuration profiles, e.g.
// [http.interceptors.ratelimit.profiles.auth].
package interceptors

import (
	"log/slog"
	"net/http"
)

// Middleware is an HTTP middleware function.
type Middleware func(http.Handler) http.Handler

// NewInterceptor builds a middleware from one profile table.
type NewInterceptor func(conf map[string]any, log *slog.Logger) (Middleware, error)

// PassThrough is used for routes without a profile.
func PassThrough(next http.Handler) http.Handler { return next }
