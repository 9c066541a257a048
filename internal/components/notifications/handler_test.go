package notifications_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/notifications"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/testutil"
)

func newNotificationsRouter(t *testing.T) (http.Handler, *notifications.Service, store.Store) {
	t.Helper()
	svc, s, _ := newService(t, 0)
	h := notifications.NewHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/notifications", h.List)
	r.Get("/api/notifications/unread-count", h.UnreadCount)
	r.Post("/api/notifications/read-all", h.MarkAllRead)
	r.Post("/api/notifications/{id}/read", h.MarkRead)
	r.Delete("/api/notifications/{id}", h.Delete)
	return r, svc, s
}

func call(router http.Handler, method, path, caller string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if caller != "" {
		req = req.WithContext(appctx.WithCaller(req.Context(), appctx.Caller{UserID: caller}))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func unread(t *testing.T, router http.Handler, caller, query string) int64 {
	t.Helper()
	w := call(router, http.MethodGet, "/api/notifications/unread-count"+query, caller)
	if w.Code != http.StatusOK {
		t.Fatalf("unread-count: expected 200, got %d", w.Code)
	}
	var resp notifications.CountResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.Unread
}

func TestHandler_ReadFlow(t *testing.T) {
	router, svc, _ := newNotificationsRouter(t)
	ctx := t.Context()

	for _, from := range []string{"alice", "carol"} {
		if err := svc.ConnectionRequested(ctx, testutil.TestProfile(from).Snapshot(), "bob"); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.Create(ctx, &store.Notification{RecipientID: "bob", Type: notifications.TypeSystem, Title: "Welcome"}); err != nil {
		t.Fatal(err)
	}

	if got := unread(t, router, "bob", ""); got != 3 {
		t.Errorf("expected 3 unread, got %d", got)
	}
	if got := unread(t, router, "bob", "?type=connection"); got != 2 {
		t.Errorf("expected 2 unread connection notifications, got %d", got)
	}

	w := call(router, http.MethodGet, "/api/notifications", "bob")
	var list notifications.ListResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Notifications) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(list.Notifications))
	}

	id := list.Notifications[0].ID
	if w := call(router, http.MethodPost, "/api/notifications/"+id+"/read", "alice"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 marking someone else's notification, got %d", w.Code)
	}
	if w := call(router, http.MethodPost, "/api/notifications/"+id+"/read", "bob"); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if got := unread(t, router, "bob", ""); got != 2 {
		t.Errorf("expected 2 unread after mark read, got %d", got)
	}

	w = call(router, http.MethodPost, "/api/notifications/read-all", "bob")
	var all notifications.MarkAllResponse
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatal(err)
	}
	if all.Updated != 2 {
		t.Errorf("expected 2 updated, got %d", all.Updated)
	}

	if w := call(router, http.MethodDelete, "/api/notifications/"+id, "bob"); w.Code != http.StatusNoContent {
		t.Errorf("expected 204 on delete, got %d", w.Code)
	}
	if w := call(router, http.MethodDelete, "/api/notifications/"+id, "bob"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on repeated delete, got %d", w.Code)
	}
}

func TestHandler_BadInput(t *testing.T) {
	router, _, _ := newNotificationsRouter(t)

	tests := []struct {
		name       string
		path       string
		caller     string
		wantStatus int
	}{
		{"anonymous", "/api/notifications", "", http.StatusUnauthorized},
		{"bad limit", "/api/notifications?limit=-1", "bob", http.StatusBadRequest},
		{"unknown type", "/api/notifications/unread-count?type=gossip", "bob", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := call(router, http.MethodGet, tt.path, tt.caller); w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}
