// Package middleware provides the always-on transport middleware of the HTTP server.
package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/realip"
)

// RequestLoggerMiddleware puts a logger carrying request_id, method, path
// and client_ip into the request context. Handlers and the access log pick
// it up through appctx.
//
// Must run after chimw.RequestID.
func RequestLoggerMiddleware(base *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := appctx.WithLogger(r.Context(), requestLogger(base, trustedProxies, r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLogger(base *slog.Logger, trustedProxies *realip.TrustedProxies, r *http.Request) *slog.Logger {
	clientIP := "unknown"
	if trustedProxies != nil {
		clientIP = trustedProxies.GetClientIPString(r)
	}
	return base.With(
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path, // query strings may carry tokens
		"client_ip", clientIP,
	)
}
