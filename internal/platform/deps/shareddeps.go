// Package deps holds the dependencies shared by every HTTP service.
// main builds them once; service constructors read them through GetDeps.
package deps

import (
	"sync"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/live"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/notifications"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/profiles"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/config"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps holds shared dependencies for all services.
type Deps struct {
	Config *config.Config

	// Infrastructure
	Store store.Store
	Cache cache.CacheWithCounter
	Bus   pubsub.Bus

	// Identity
	Users     identity.UserRepo
	Sessions  identity.SessionRepo
	UserAuth  *identity.UserAuth
	Tokens    *identity.TokenIssuer // nil when bearer JWTs are disabled
	Bootstrap *identity.Bootstrap

	// Domain
	Directory     *profiles.Directory
	Engine        *connections.Engine
	Notifications *notifications.Service
	Feed          *live.Feed

	// RealIP is the single source of client addresses for logging and
	// rate limiting.
	RealIP *realip.TrustedProxies
}

// SetDeps sets the shared dependencies. Must be called once at startup
// before any services are constructed.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies, or nil before SetDeps.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps is for testing only. Resets the singleton.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
