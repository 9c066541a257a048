package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/realip"
)

// AccessLogMiddleware writes one "request" record per request with status,
// bytes and duration_ms added to the context logger. When no context
// logger is present the base fields are recomputed from log.
//
// Event streams are logged when they close, so their duration is the
// lifetime of the stream.
func AccessLogMiddleware(log *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger, ok := appctx.LoggerFromContext(r.Context())
				if !ok {
					logger = requestLogger(log, trustedProxies, r)
				}
				// Base fields are already on logger; adding them again duplicates keys.
				logger.Log(r.Context(), levelFor(ww.Status()), "request",
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"stream", isStream(ww),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelInfo
}

func isStream(ww chimw.WrapResponseWriter) bool {
	return strings.HasPrefix(ww.Header().Get("Content-Type"), "text/event-stream")
}
