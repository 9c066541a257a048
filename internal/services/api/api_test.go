package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/live"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/notifications"
	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/config"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/deps"

	_ "github.com/MahdiBaghbani/campusmesh-go/internal/interceptors/ratelimit"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/loader"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestDeps builds in-memory SharedDeps from the dev preset.
func setupTestDeps(t *testing.T, mutate func(*config.Config)) *deps.Deps {
	t.Helper()
	cfg := config.DevConfig()
	if mutate != nil {
		mutate(cfg)
	}
	d, err := deps.Build(t.Context(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("deps.Build: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	deps.ResetDeps()
	deps.SetDeps(d)
	t.Cleanup(deps.ResetDeps)
	return d
}

func newService(t *testing.T, m map[string]any) service.Service {
	t.Helper()
	svc, err := New(m, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func register(t *testing.T, d *deps.Deps, username string) *identity.User {
	t.Helper()
	u, err := d.Bootstrap.Register(t.Context(), identity.SeededUser{Username: username, Password: username + "-pass"})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// do serves a request on the service handler as if the auth gate had
// already admitted callerID. Paths are relative to the /api mount.
func do(h http.Handler, method, path, callerID string, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if callerID != "" {
		req = req.WithContext(appctx.WithCaller(req.Context(), appctx.Caller{UserID: callerID, Role: identity.RoleUser}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_FailsWithoutSharedDeps(t *testing.T) {
	deps.ResetDeps()

	if _, err := New(map[string]any{}, quietLogger()); err == nil {
		t.Error("expected error when SharedDeps not initialized")
	}
}

func TestService_Contract(t *testing.T) {
	setupTestDeps(t, nil)
	svc := newService(t, map[string]any{})

	if svc.Prefix() != "api" {
		t.Errorf("expected prefix 'api', got %q", svc.Prefix())
	}
	if svc.Handler() == nil {
		t.Error("expected non-nil Handler")
	}

	expectedPaths := map[string]bool{"/healthz": false, "/auth/login": false, "/auth/register": false}
	for _, p := range svc.Unprotected() {
		if _, ok := expectedPaths[p]; !ok {
			t.Errorf("unexpected unprotected path %q", p)
		}
		expectedPaths[p] = true
	}
	for p, found := range expectedPaths {
		if !found {
			t.Errorf("expected unprotected path %q not found", p)
		}
	}

	if err := svc.Close(); err != nil {
		t.Errorf("unexpected error on Close: %v", err)
	}
}

func TestService_ConnectionFlow(t *testing.T) {
	d := setupTestDeps(t, nil)
	h := newService(t, map[string]any{}).Handler()
	alice := register(t, d, "alice")
	bob := register(t, d, "bob")

	if rec := do(h, http.MethodPost, "/connections/"+alice.ID+"/request", bob.ID, ""); rec.Code != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if rec := do(h, http.MethodPost, "/connections/"+alice.ID+"/request", bob.ID, ""); rec.Code != http.StatusConflict {
		t.Errorf("repeat request: expected 409, got %d", rec.Code)
	}

	rec := do(h, http.MethodGet, "/live/view", alice.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("live view: expected 200, got %d", rec.Code)
	}
	var view live.View
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.UnreadConnectionNotifications != 1 {
		t.Errorf("expected 1 unread connection notification, got %d", view.UnreadConnectionNotifications)
	}
	if len(view.Connections) != 1 || view.Connections[0].State != connections.StatePendingReceived {
		t.Errorf("expected one received request, got %+v", view.Connections)
	}

	if rec := do(h, http.MethodPost, "/connections/"+bob.ID+"/accept", alice.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	list, err := d.Notifications.List(t.Context(), alice.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || !list[0].ActionDone || list[0].Type != notifications.TypeConnection {
		t.Errorf("expected the request notification to be marked handled, got %+v", list)
	}

	rec = do(h, http.MethodGet, "/connections/"+bob.ID+"/status", alice.ID, "")
	var status connections.TransitionResponse
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.State != connections.StateAccepted {
		t.Errorf("expected accepted, got %q", status.State)
	}

	if rec := do(h, http.MethodDelete, "/connections/"+alice.ID, bob.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("remove: expected 200, got %d", rec.Code)
	}
	if rec := do(h, http.MethodDelete, "/connections/"+alice.ID, bob.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("repeat remove: expected 404, got %d", rec.Code)
	}
}

func TestService_CancelSettlesRequestNotification(t *testing.T) {
	d := setupTestDeps(t, nil)
	h := newService(t, map[string]any{}).Handler()
	alice := register(t, d, "alice")
	bob := register(t, d, "bob")

	if rec := do(h, http.MethodPost, "/connections/"+alice.ID+"/request", bob.ID, ""); rec.Code != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/connections/"+alice.ID+"/cancel", bob.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	list, err := d.Notifications.List(t.Context(), alice.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || !list[0].ActionDone {
		t.Errorf("expected alice's request notification to be handled after cancel, got %+v", list)
	}
}

func TestService_Registration(t *testing.T) {
	tests := []struct {
		name       string
		conf       map[string]any
		wantStatus int
	}{
		{"enabled by default", map[string]any{}, http.StatusCreated},
		{"disabled", map[string]any{"disable_registration": true}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestDeps(t, nil)
			h := newService(t, tt.conf).Handler()
			rec := do(h, http.MethodPost, "/auth/register", "", `{"username":"carol","password":"carol-pass-1"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body)
			}
		})
	}
}

func TestService_LoginRatelimit(t *testing.T) {
	d := setupTestDeps(t, func(cfg *config.Config) {
		cfg.HTTP.Interceptors = map[string]map[string]any{
			"ratelimit": {
				"profiles": map[string]any{
					"auth": map[string]any{"requests_per_window": 2, "window_seconds": 60},
				},
			},
		}
	})
	register(t, d, "alice")
	h := newService(t, map[string]any{"ratelimit_profile": "auth"}).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := do(h, http.MethodPost, "/auth/login", "", `{"username":"alice","password":"wrong"}`)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected [401 401 429], got %v", codes)
	}
}

func TestNew_UnknownRatelimitProfile(t *testing.T) {
	setupTestDeps(t, nil)

	if _, err := New(map[string]any{"mutation_ratelimit_profile": "missing"}, quietLogger()); err == nil {
		t.Error("expected error for undefined ratelimit profile")
	}
}

func TestService_Healthz(t *testing.T) {
	setupTestDeps(t, nil)
	h := newService(t, map[string]any{}).Handler()

	if rec := do(h, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
