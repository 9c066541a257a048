package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/live"
	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/config"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/deps"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/server"

	_ "github.com/MahdiBaghbani/campusmesh-go/internal/interceptors/ratelimit"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/services/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/loader"
)

// testServer is a full in-process instance behind a real listener.
type testServer struct {
	URL  string
	Deps *deps.Deps
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.DevConfig()
	cfg.Auth.JWTSecret = "integration-secret-integration-secret"

	d, err := deps.Build(t.Context(), cfg, logger)
	if err != nil {
		t.Fatalf("deps.Build: %v", err)
	}
	deps.ResetDeps()
	deps.SetDeps(d)

	services, err := service.Build(service.Enabled(nil), cfg.BuildServiceConfig, logger)
	if err != nil {
		t.Fatalf("service.Build: %v", err)
	}

	srv, err := server.New(cfg, logger, services)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		hs.CloseClientConnections()
		hs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		d.Close()
		deps.ResetDeps()
	})
	return &testServer{URL: hs.URL, Deps: d}
}

// user is a browser-like client holding a session cookie.
type user struct {
	ID     string
	Client *http.Client
	Login  identity.LoginResponse
}

func (ts *testServer) register(t *testing.T, username string) *user {
	t.Helper()
	jar, _ := cookiejar.New(nil)
	u := &user{Client: &http.Client{Jar: jar}}

	body := `{"username":"` + username + `","password":"` + username + `-password"}`
	resp, err := u.Client.Post(ts.URL+"/api/auth/register", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d", username, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&u.Login); err != nil {
		t.Fatal(err)
	}
	u.ID = u.Login.User.ID
	return u
}

func (u *user) do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := u.Client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// openStream starts a live stream and returns decoded views as they arrive.
func (u *user) openStream(t *testing.T, url string) <-chan live.View {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := u.Client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("stream: expected 200, got %d", resp.StatusCode)
	}

	views := make(chan live.View, 16)
	go func() {
		defer resp.Body.Close()
		defer close(views)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			data, ok := bytes.CutPrefix(sc.Bytes(), []byte("data: "))
			if !ok {
				continue
			}
			var v live.View
			if json.Unmarshal(data, &v) == nil {
				views <- v
			}
		}
	}()
	return views
}

func awaitView(t *testing.T, views <-chan live.View, match func(live.View) bool) live.View {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v, ok := <-views:
			if !ok {
				t.Fatal("stream closed before expected view")
			}
			if match(v) {
				return v
			}
		case <-timeout:
			t.Fatal("timed out waiting for view")
		}
	}
}

func TestEndToEnd_RequestAcceptWithLiveView(t *testing.T) {
	ts := startTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	views := alice.openStream(t, ts.URL+"/live/stream")
	awaitView(t, views, func(v live.View) bool {
		return v.Identity == alice.ID && len(v.Connections) == 0
	})

	resp := bob.do(t, http.MethodPost, ts.URL+"/api/connections/"+alice.ID+"/request")
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d", resp.StatusCode)
	}

	v := awaitView(t, views, func(v live.View) bool {
		return v.UnreadConnectionNotifications == 1 && len(v.Connections) == 1
	})
	if v.Connections[0].State != connections.StatePendingReceived || v.Connections[0].Counterpart.ID != bob.ID {
		t.Errorf("expected a pending request from bob, got %+v", v.Connections[0])
	}

	resp = alice.do(t, http.MethodPost, ts.URL+"/api/connections/"+bob.ID+"/accept")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d", resp.StatusCode)
	}
	awaitView(t, views, func(v live.View) bool {
		return len(v.Connections) == 1 && v.Connections[0].State == connections.StateAccepted
	})

	resp = bob.do(t, http.MethodGet, ts.URL+"/api/connections/"+alice.ID+"/status")
	defer resp.Body.Close()
	var status connections.TransitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.State != connections.StateAccepted {
		t.Errorf("expected accepted from bob's side, got %q", status.State)
	}
}

func TestEndToEnd_AuthSurfaces(t *testing.T) {
	ts := startTestServer(t)
	alice := ts.register(t, "alice")

	anon := &http.Client{}
	tests := []struct {
		name       string
		client     *http.Client
		path       string
		bearer     string
		wantStatus int
	}{
		{"health is public", anon, "/api/healthz", "", http.StatusOK},
		{"connections need a session", anon, "/api/connections", "", http.StatusUnauthorized},
		{"stream needs a session", anon, "/live/stream", "", http.StatusUnauthorized},
		{"session cookie", alice.Client, "/api/auth/me", "", http.StatusOK},
		{"bearer jwt", anon, "/api/auth/me", alice.Login.AccessToken, http.StatusOK},
		{"opaque session token as bearer", anon, "/api/profiles/me", alice.Login.Token, http.StatusOK},
		{"garbage bearer", anon, "/api/auth/me", "nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+tt.path, nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			resp, err := tt.client.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}

	if alice.Login.AccessToken == "" {
		t.Error("expected an access token when a JWT secret is configured")
	}
}
