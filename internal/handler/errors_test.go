package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moovies/internal/middleware"
	"github.com/hitoshi/moovies/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewQueryRequiredError(), http.StatusBadRequest},
		{model.NewDescriptionRequiredError(), http.StatusBadRequest},
		{model.NewInvalidRequestError("bad"), http.StatusBadRequest},
		{model.NewMovieNotFoundError("x"), http.StatusNotFound},
		{model.NewUpstreamFailedError("boom"), http.StatusBadGateway},
		{model.NewRecommendFailedError("boom", ""), http.StatusBadGateway},
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{model.NewUnauthorizedError("no"), http.StatusUnauthorized},
		{model.NewUsernameTakenError("alice"), http.StatusConflict},
		{model.NewUpstreamMisconfiguredError("missing"), http.StatusInternalServerError},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	err := errors.Join(errors.New("context"), model.NewMovieNotFoundError("Nope"))

	handleServiceError(w, err)

	if w.Code != http.StatusNotFound {
		t.Fatalf("ラップされたAPIErrorも検出されること: status = %d", w.Code)
	}
	var body middleware.ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body.Error != `No results for "Nope"` {
		t.Errorf("error = %q", body.Error)
	}
}

func TestHandleServiceError_UnknownError(t *testing.T) {
	w := httptest.NewRecorder()

	handleServiceError(w, errors.New("db down"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("APIError以外は500になること: status = %d", w.Code)
	}
}
