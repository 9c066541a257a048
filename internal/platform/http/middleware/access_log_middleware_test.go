package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/realip"
)

// jsonLog collects records written by a JSON handler.
type jsonLog struct {
	buf bytes.Buffer
}

func newJSONLog(level slog.Level) (*jsonLog, *slog.Logger) {
	l := &jsonLog{}
	return l, slog.New(slog.NewJSONHandler(&l.buf, &slog.HandlerOptions{Level: level}))
}

// records decodes every line, keeping those whose msg matches.
func (l *jsonLog) records(t *testing.T, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(l.buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

func (l *jsonLog) only(t *testing.T, msg string) map[string]any {
	t.Helper()
	recs := l.records(t, msg)
	if len(recs) != 1 {
		t.Fatalf("expected exactly one %q record, got %d: %s", msg, len(recs), l.buf.String())
	}
	return recs[0]
}

// chain mirrors the server's middleware order.
func chain(log *slog.Logger, tp *realip.TrustedProxies, h http.Handler, extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, RequestLoggerMiddleware(log, tp), AccessLogMiddleware(log, tp))
	r.Use(extra...)
	r.Handle("/*", h)
	return r
}

func TestAccessLog_RequiredFields(t *testing.T) {
	logs, log := newJSONLog(slog.LevelInfo)
	h := chain(log, realip.NewTrustedProxies(nil), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"state":"pending_sent"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/connections/bob/request?token=secret", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := logs.only(t, "request")
	want := map[string]any{
		"method":    "POST",
		"path":      "/api/connections/bob/request",
		"client_ip": "198.51.100.7",
		"status":    float64(http.StatusCreated),
		"bytes":     float64(len(`{"state":"pending_sent"}`)),
		"stream":    false,
		"level":     "INFO",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, rec[k])
		}
	}
	for _, k := range []string{"request_id", "duration_ms"} {
		if _, ok := rec[k]; !ok {
			t.Errorf("expected %s in access log, got %v", k, rec)
		}
	}
}

func TestAccessLog_HandlerLogsShareRequestFields(t *testing.T) {
	logs, log := newJSONLog(slog.LevelInfo)
	h := chain(log, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		appctx.GetLogger(r.Context()).Info("connection accepted", "pair_key", "alice_bob")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/connections/alice/accept", nil))

	handlerRec := logs.only(t, "connection accepted")
	accessRec := logs.only(t, "request")
	if handlerRec["request_id"] == nil || handlerRec["request_id"] != accessRec["request_id"] {
		t.Errorf("expected matching request_id, got %v and %v", handlerRec["request_id"], accessRec["request_id"])
	}
	if handlerRec["client_ip"] != "unknown" {
		t.Errorf("expected unknown client_ip without a resolver, got %v", handlerRec["client_ip"])
	}
}

func TestAccessLog_FallbackWithoutContextLogger(t *testing.T) {
	logs, log := newJSONLog(slog.LevelInfo)
	h := AccessLogMiddleware(log, realip.NewTrustedProxies(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := logs.only(t, "request")
	if rec["path"] != "/api/healthz" || rec["client_ip"] != "203.0.113.9" {
		t.Errorf("expected base fields recomputed, got %v", rec)
	}
	if rec["status"] != float64(http.StatusNoContent) {
		t.Errorf("expected status 204, got %v", rec["status"])
	}
}

func TestAccessLog_Levels(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantLevel string
		wantCode  float64
	}{
		{"not found is info", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }, "INFO", 404},
		{"server error is error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }, "ERROR", 502},
		{"panic recovered as 500", func(w http.ResponseWriter, r *http.Request) { panic("boom") }, "ERROR", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, log := newJSONLog(slog.LevelInfo)
			h := chain(log, nil, tt.handler, chimw.Recoverer)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

			rec := logs.only(t, "request")
			if rec["level"] != tt.wantLevel || rec["status"] != tt.wantCode {
				t.Errorf("expected %s/%v, got %v/%v", tt.wantLevel, tt.wantCode, rec["level"], rec["status"])
			}
		})
	}
}

func TestAccessLog_DebugFiltering(t *testing.T) {
	for _, level := range []slog.Level{slog.LevelInfo, slog.LevelDebug} {
		logs, log := newJSONLog(level)
		h := chain(log, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			appctx.GetLogger(r.Context()).Debug("suggest pool scanned", "scanned", 40)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/connections/suggestions", nil))

		got := len(logs.records(t, "suggest pool scanned"))
		want := 0
		if level == slog.LevelDebug {
			want = 1
		}
		if got != want {
			t.Errorf("level %v: expected %d debug records, got %d", level, want, got)
		}
		if len(logs.records(t, "request")) != 1 {
			t.Errorf("level %v: expected the access log record", level)
		}
	}
}

func TestAccessLog_MarksEventStreams(t *testing.T) {
	logs, log := newJSONLog(slog.LevelInfo)
	h := chain(log, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: view\ndata: {}\n\n"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/live/stream", nil))

	if rec := logs.only(t, "request"); rec["stream"] != true {
		t.Errorf("expected stream=true, got %v", rec["stream"])
	}
}
