// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moovies/internal/middleware"
	"github.com/hitoshi/moovies/internal/model"
)

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeQueryRequired, model.ErrCodeDescriptionRequired, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeMovieNotFound:
		return http.StatusNotFound
	case model.ErrCodeUpstreamFailed, model.ErrCodeRecommendFailed:
		return http.StatusBadGateway
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeUsernameTaken:
		return http.StatusConflict
	case model.ErrCodeUpstreamMisconfigured:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
