// Package service defines the pluggable HTTP service contract. Each service
// registers a constructor from init(); the server mounts every core service
// under its prefix and gates everything except Unprotected paths behind
// session authentication.
package service

import (
	"log/slog"
	"net/http"
)

// Service represents an HTTP service that can be registered and mounted.
type Service interface {
	Handler() http.Handler
	// Prefix is the mount point without slashes, e.g. "api".
	Prefix() string
	Close() error
	// Unprotected lists paths, relative to the prefix, reachable without a session.
	Unprotected() []string
}

// NewService is the constructor function type for services.
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)
