package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/moovies/internal/middleware"
	"github.com/hitoshi/moovies/internal/model"
)

// MovieServiceInterface は映画ハンドラーが必要とするサービスインターフェース。
type MovieServiceInterface interface {
	Lookup(ctx context.Context, query string) (*model.MovieDetails, error)
	RandomMovies(ctx context.Context) ([]model.RandomMovie, error)
}

// MovieHandler は映画検索関連のHTTPハンドラー。
type MovieHandler struct {
	service MovieServiceInterface
}

// NewMovieHandler はMovieHandlerを生成する。
func NewMovieHandler(service MovieServiceInterface) *MovieHandler {
	return &MovieHandler{service: service}
}

// Lookup はクエリに最も合う映画と出演者・レビューを返す。
// GET /api/movie?query=xxx
func (h *MovieHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.Lookup(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, details)
}

// RandomMovies はヒーロー背景用のランダムな映画一覧を返す。
// GET /api/random-movies
func (h *MovieHandler) RandomMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.service.RandomMovies(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if movies == nil {
		movies = []model.RandomMovie{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"results": movies})
}
