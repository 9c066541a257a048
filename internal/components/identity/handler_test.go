package identity_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	storemem "github.com/MahdiBaghbani/campusmesh-go/internal/store/memory"
)

type authFixture struct {
	users    *identity.StoreUserRepo
	sessions *identity.CacheSessionRepo
	tokens   *identity.TokenIssuer
	profiles *fakeProfiles
	handler  *identity.Handler
}

func newAuthFixture(t *testing.T, withTokens bool) *authFixture {
	t.Helper()
	f := &authFixture{
		users:    identity.NewStoreUserRepo(storemem.New()),
		sessions: newSessionRepo(t),
		profiles: newFakeProfiles(),
	}
	if withTokens {
		f.tokens = identity.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	}
	auth := identity.NewUserAuthFast()
	bootstrap := identity.NewBootstrap(f.users, auth, f.profiles, nil)
	if _, err := bootstrap.Run(t.Context(), identity.SeededUser{}, []identity.SeededUser{
		{Username: "alice", Password: "alicepass", DisplayName: "Alice"},
	}); err != nil {
		t.Fatal(err)
	}
	f.handler = identity.NewHandler(f.users, f.sessions, auth, f.tokens, bootstrap, time.Hour)
	return f
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestHandler_Login(t *testing.T) {
	f := newAuthFixture(t, true)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"valid credentials", identity.LoginRequest{Username: "alice", Password: "alicepass"}, http.StatusOK},
		{"wrong password", identity.LoginRequest{Username: "alice", Password: "nope"}, http.StatusUnauthorized},
		{"unknown user", identity.LoginRequest{Username: "mallory", Password: "x"}, http.StatusUnauthorized},
		{"missing password", identity.LoginRequest{Username: "alice"}, http.StatusBadRequest},
		{"not json", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, f.handler.Login, "/api/auth/login", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestHandler_LoginIssuesSessionAndToken(t *testing.T) {
	f := newAuthFixture(t, true)

	w := postJSON(t, f.handler.Login, "/api/auth/login", identity.LoginRequest{Username: "alice", Password: "alicepass"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp identity.LoginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.User == nil || resp.User.Username != "alice" {
		t.Fatalf("expected user alice in response, got %+v", resp.User)
	}

	session, err := f.sessions.Get(t.Context(), resp.Token)
	if err != nil {
		t.Fatalf("session token not stored: %v", err)
	}
	if session.UserID != resp.User.ID {
		t.Errorf("expected session for %s, got %s", resp.User.ID, session.UserID)
	}

	claims, err := f.tokens.Verify(resp.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.Subject != resp.User.ID {
		t.Errorf("expected subject %s, got %s", resp.User.ID, claims.Subject)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == identity.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != resp.Token || !cookie.HttpOnly {
		t.Errorf("expected HttpOnly session cookie with token, got %+v", cookie)
	}
}

func TestHandler_LoginWithoutTokenIssuer(t *testing.T) {
	f := newAuthFixture(t, false)

	w := postJSON(t, f.handler.Login, "/api/auth/login", identity.LoginRequest{Username: "alice", Password: "alicepass"})
	var resp identity.LoginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken != "" {
		t.Errorf("expected no access token when JWTs are disabled, got %q", resp.AccessToken)
	}
}

func TestHandler_Register(t *testing.T) {
	f := newAuthFixture(t, false)

	w := postJSON(t, f.handler.Register, "/api/auth/register", identity.RegisterRequest{
		Username:    "bob",
		Password:    "bobpass",
		DisplayName: "Bob",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	user, err := f.users.GetByUsername(t.Context(), "bob")
	if err != nil {
		t.Fatalf("registered user not stored: %v", err)
	}
	if user.Role != identity.RoleUser {
		t.Errorf("expected role user, got %s", user.Role)
	}
	if f.profiles.seen[user.ID] != "Bob" {
		t.Errorf("expected profile provisioned with display name Bob, got %q", f.profiles.seen[user.ID])
	}

	w = postJSON(t, f.handler.Register, "/api/auth/register", identity.RegisterRequest{Username: "bob", Password: "other"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate username, got %d", w.Code)
	}

	w = postJSON(t, f.handler.Register, "/api/auth/register", identity.RegisterRequest{Username: "with space", Password: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid username, got %d", w.Code)
	}
}

func TestHandler_RegisterDisabled(t *testing.T) {
	h := identity.NewHandler(identity.NewStoreUserRepo(storemem.New()), newSessionRepo(t), identity.NewUserAuthFast(), nil, nil, time.Hour)

	w := postJSON(t, h.Register, "/api/auth/register", identity.RegisterRequest{Username: "bob", Password: "x"})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestHandler_Logout(t *testing.T) {
	f := newAuthFixture(t, false)
	user, _ := f.users.GetByUsername(t.Context(), "alice")
	session, err := f.sessions.Create(t.Context(), user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	w := httptest.NewRecorder()
	f.handler.Logout(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, err := f.sessions.Get(t.Context(), session.Token); err == nil {
		t.Error("session should be gone after logout")
	}

	w = httptest.NewRecorder()
	f.handler.Logout(w, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
}

func TestHandler_Me(t *testing.T) {
	f := newAuthFixture(t, false)
	user, _ := f.users.GetByUsername(t.Context(), "alice")

	w := httptest.NewRecorder()
	f.handler.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for anonymous request, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(appctx.WithCaller(req.Context(), appctx.Caller{UserID: user.ID, Role: user.Role}))
	w = httptest.NewRecorder()
	f.handler.Me(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["username"] != "alice" {
		t.Errorf("expected username alice, got %v", got["username"])
	}
	if _, leaked := got["PasswordHash"]; leaked {
		t.Error("password hash must not be serialized")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"none", "", "", ""},
		{"cookie", "c-token", "", "c-token"},
		{"bearer", "", "Bearer b-token", "b-token"},
		{"cookie wins", "c-token", "Bearer b-token", "c-token"},
		{"basic ignored", "", "Basic abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := identity.ExtractToken(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
