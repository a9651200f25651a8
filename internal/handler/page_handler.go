package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moovies/internal/middleware"
	"github.com/hitoshi/moovies/internal/web"
)

// pageHandler は埋め込みHTMLページシェルを返すハンドラーを生成する。
func pageHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := web.Page(name)
		if err != nil {
			slog.Error("ページの読み込みに失敗", slog.String("page", name), slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

// Pinger はヘルスチェック対象（DB接続）のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthHandler はDB接続を確認するヘルスチェックハンドラーを生成する。
// GET /health
func healthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.PingContext(r.Context()); err != nil {
				slog.Warn("ヘルスチェック失敗", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
