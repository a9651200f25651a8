package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/moovies/internal/metrics"
	"github.com/hitoshi/moovies/internal/model"
)

// statusRecorder は最初に書き込まれたステータスコードを覚えておく。
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.code == 0 {
		sr.code = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.code == 0 {
		sr.code = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseController用。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// status は記録したステータスコードを返す。何も書かれていなければ200。
func (sr *statusRecorder) status() int {
	if sr.code == 0 {
		return http.StatusOK
	}
	return sr.code
}

// requestInfo は内側のミドルウェアが判明させた呼び出し元を外側のアクセスログへ渡す。
type requestInfo struct {
	identity *model.Identity
}

var requestInfoContextKey = contextKey("request_info")

func recordIdentity(ctx context.Context, identity *model.Identity) {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.identity = identity
	}
}

// NewLoggingMiddleware は1リクエストにつき1行のアクセスログ "http_request" を出力する。
// 5xxはERROR、4xxはWARN、それ以外はINFOで記録する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			info := &requestInfo{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoContextKey, info)))

			status := rec.status()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Float64("duration_ms", float64(time.Since(start))/float64(time.Millisecond)),
			}
			if id := info.identity; id != nil {
				attrs = append(attrs,
					slog.String("user_id", id.UID),
					slog.String("provider", id.Provider),
				)
			}
			logger.LogAttrs(r.Context(), levelForStatus(status), "http_request", attrs...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録する。
func NewMetricsMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			collector.RecordHTTPStatus(rec.status())
		})
	}
}
