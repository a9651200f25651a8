package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moovies/internal/metrics"
	"github.com/hitoshi/moovies/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log %q: %v", buf.String(), err)
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/movie?query=heat", nil))

	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["method"] != "GET" || entry["path"] != "/api/movie" {
		t.Errorf("method/path = %v %v", entry["method"], entry["path"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v", entry["status"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d <= 0 {
		t.Errorf("duration_ms = %v", entry["duration_ms"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("未認証の場合はuser_idを出力しないこと")
	}
}

func TestLoggingMiddleware_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			handler := NewLoggingMiddleware(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			entry := decodeLogEntry(t, &buf)
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("status = %v", entry["status"])
			}
		})
	}
}

// TestLoggingMiddleware_IncludesIdentityFromInnerAuth は
// 内側の認証ミドルウェアで判明したユーザーがログに出ることを検証する。
func TestLoggingMiddleware_IncludesIdentityFromInnerAuth(t *testing.T) {
	var buf bytes.Buffer
	identity := &model.Identity{UID: "uid-42", Provider: "firebase"}

	inner := NewAuthMiddleware(authenticatorReturning(identity, nil), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler := NewLoggingMiddleware(newTestLogger(&buf))(inner)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/movie", nil))

	entry := decodeLogEntry(t, &buf)
	if entry["user_id"] != "uid-42" || entry["provider"] != "firebase" {
		t.Errorf("user_id/provider = %v/%v", entry["user_id"], entry["provider"])
	}
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	mc := &statusMetrics{}
	handler := NewMetricsMiddleware(mc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	if len(mc.codes) != 2 || mc.codes[0] != 200 || mc.codes[1] != 404 {
		t.Errorf("codes = %v, want [200 404]", mc.codes)
	}
}

type statusMetrics struct {
	metrics.Nop
	codes []int
}

func (m *statusMetrics) RecordHTTPStatus(code int) { m.codes = append(m.codes, code) }
