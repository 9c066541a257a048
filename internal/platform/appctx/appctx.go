// Package appctx carries request-scoped values through context: the enriched
// logger and the authenticated caller identity.
package appctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

type callerKey struct{}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger from the context (if present).
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// GetLogger returns the logger from the context, or slog.Default() if missing.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	return slog.Default()
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Role   string
}

// WithCaller attaches the authenticated caller to the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller, if the request was authenticated.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.UserID != ""
}

// CallerID is a shorthand returning "" for anonymous requests.
func CallerID(ctx context.Context) string {
	c, _ := CallerFromContext(ctx)
	return c.UserID
}
