package service

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/registry"
)

// CoreServices are built whether or not [http.services.<name>] appears in TOML.
var CoreServices = []string{"api", "live"}

var services = registry.New[NewService]("service")

// Register registers a service constructor by name. Duplicates are an error.
func Register(name string, newFunc NewService) error {
	return services.Register(name, newFunc)
}

// MustRegister is Register for init().
func MustRegister(name string, newFunc NewService) {
	services.MustRegister(name, newFunc)
}

// Get returns the constructor for a registered service, or nil.
func Get(name string) NewService {
	fn, _ := services.Lookup(name)
	return fn
}

// RegisteredServices returns the names of all registered services, sorted.
func RegisteredServices() []string {
	return services.Names()
}

func resetRegistry() {
	services.Reset()
}

// Enabled returns CoreServices followed by the sorted configured names that
// are not core.
func Enabled(configured []string) []string {
	names := slices.Clone(CoreServices)
	extra := slices.Sorted(slices.Values(configured))
	for _, name := range slices.Compact(extra) {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// Build constructs the named services, passing each its config map from
// confOf. On failure the services already built are closed.
func Build(names []string, confOf func(name string) map[string]any, log *slog.Logger) (map[string]Service, error) {
	built := make(map[string]Service, len(names))
	fail := func(err error) (map[string]Service, error) {
		for _, svc := range built {
			svc.Close()
		}
		return nil, err
	}

	for _, name := range names {
		newFn := Get(name)
		if newFn == nil {
			return fail(fmt.Errorf("service %q is configured but not registered (available: %v)", name, RegisteredServices()))
		}
		svc, err := newFn(confOf(name), log)
		if err != nil {
			return fail(fmt.Errorf("failed to create service %q: %w", name, err))
		}
		if svc == nil {
			return fail(errors.New("service " + name + " constructor returned nil"))
		}
		built[name] = svc
	}
	return built, nil
}
