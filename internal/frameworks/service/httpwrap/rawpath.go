// Package httpwrap holds handler wrappers shared by services.
package httpwrap

import "net/http"

// ClearRawPath makes chi route on r.URL.Path, so URL parameters such as
// {id} arrive decoded and an escaped slash is treated as a separator.
func ClearRawPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawPath == "" {
			next.ServeHTTP(w, r)
			return
		}
		r2 := r.Clone(r.Context())
		r2.URL.RawPath = ""
		next.ServeHTTP(w, r2)
	})
}
