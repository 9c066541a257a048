package api

import (
	"net/http"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
)

// RequireCaller returns the authenticated caller, or writes a 401 and
// reports false.
func RequireCaller(w http.ResponseWriter, r *http.Request) (appctx.Caller, bool) {
	caller, ok := appctx.CallerFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
	}
	return caller, ok
}
