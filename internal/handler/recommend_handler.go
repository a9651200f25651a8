package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/moovies/internal/middleware"
	"github.com/hitoshi/moovies/internal/model"
)

// RecommendServiceInterface はおすすめハンドラーが必要とするサービスインターフェース。
type RecommendServiceInterface interface {
	Recommend(ctx context.Context, description string) ([]string, error)
}

// RecommendHandler はおすすめ取得のHTTPハンドラー。
type RecommendHandler struct {
	service RecommendServiceInterface
}

// NewRecommendHandler はRecommendHandlerを生成する。
func NewRecommendHandler(service RecommendServiceInterface) *RecommendHandler {
	return &RecommendHandler{service: service}
}

// Recommend は説明文に合う映画タイトルを返す。
// POST /api/recommend
//
// JSONとして解釈できないボディは説明文なしとして扱う。
func (h *RecommendHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeJSON(r, &req); err != nil {
		req = recommendRequest{}
	}
	if err := validate.Struct(req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("description is too long"))
		return
	}

	titles, err := h.service.Recommend(r.Context(), req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"recommendations": titles})
}
