package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/moovies/internal/metrics"
)

// NewRecoveryMiddleware はハンドラーのpanicを500レスポンスに変換する。
// http.ErrAbortHandlerはサーバーに接続を切らせるため、そのまま再panicする。
//
// メトリクスミドルウェアより外側に置くため、panicした応答の500はここで記録する。
func NewRecoveryMiddleware(logger *slog.Logger, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				attrs := []slog.Attr{
					slog.Any("panic", rec),
					slog.String("request_id", chimiddleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				// /api/movie の検索語。再現に必要
				if q := r.URL.Query().Get("query"); q != "" {
					attrs = append(attrs, slog.String("query", q))
				}
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))
				logger.LogAttrs(r.Context(), slog.LevelError, "panic recovered", attrs...)

				collector.RecordHTTPStatus(http.StatusInternalServerError)
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
