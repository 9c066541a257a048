package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/deps"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/auth"
	httpmw "github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/middleware"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups defines all endpoint groups and their auth requirements.
// This table is the single source of truth for routing decisions.
var routeGroups = []RouteGroup{
	{Name: "api", PathPrefix: "/api", RequiresAuth: true},   // exceptions via Service.Unprotected()
	{Name: "live", PathPrefix: "/live", RequiresAuth: true}, // event streams are per caller
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired checks if a given path requires authentication.
// Unprotected paths declared by mounted services win over the group table;
// unknown paths require auth.
func IsAuthRequired(path string, mountedServices []service.Service) bool {
	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		var svcBase string
		if prefix := svc.Prefix(); prefix != "" {
			svcBase = "/" + prefix
		}
		for _, unprotected := range svc.Unprotected() {
			if pathMatchesPrefix(path, svcBase+unprotected) {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}

	return true
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}

	var handler http.Handler = svc.Handler()
	if prefix := svc.Prefix(); prefix == "" {
		r.Mount("/", handler)
	} else {
		r.Mount("/"+prefix, handler)
	}

	s.mountedServices = append(s.mountedServices, svc)
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		if path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

// setupRoutes creates the chi router with all services mounted.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	r := chi.NewRouter()

	// Always-on transport middleware (order is invariant):
	// RequestID -> request-scoped logger -> access log -> recoverer -> auth gate
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger, d.RealIP))
	r.Use(httpmw.AccessLogMiddleware(s.logger, d.RealIP))
	r.Use(chimw.Recoverer)

	// The closure reads s.mountedServices at request time.
	requireAuth := func(path string) bool {
		return IsAuthRequired(path, s.mountedServices)
	}
	r.Use(auth.NewAuthGate(auth.AuthGateConfig{
		RequireAuth: requireAuth,
		Log:         s.logger,
		Sessions:    d.Sessions,
		Tokens:      d.Tokens,
		Users:       d.Users,
	}))

	for _, name := range s.mountOrder() {
		s.mountService(r, s.services[name])
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteNotFound(w, "no route for "+r.URL.Path)
	})

	return r
}
