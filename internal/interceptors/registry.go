package interceptors

import "github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/registry"

var interceptors = registry.New[NewInterceptor]("interceptor")

// MustRegister registers an interceptor constructor by name from init().
func MustRegister(name string, fn NewInterceptor) {
	interceptors.MustRegister(name, fn)
}

// Get returns the interceptor constructor for the given name.
func Get(name string) (NewInterceptor, bool) {
	return interceptors.Lookup(name)
}

// Names returns the registered interceptor names, sorted.
func Names() []string {
	return interceptors.Names()
}
