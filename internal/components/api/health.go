package api

import "net/http"

// HealthResponse is the body of GET /api/healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// Health reports liveness together with the active store driver name.
func Health(storeDriver string) http.HandlerFunc {
	body := HealthResponse{Status: "ok", Store: storeDriver}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, body)
	}
}
