// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Messageはフロントエンドが `error` フィールドとしてそのまま表示する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upstream, system
	Action   string // ユーザー向け対処方法
	Raw      string // 上流サービスの生レスポンス（デバッグ用、任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeQueryRequired         = "QUERY_REQUIRED"
	ErrCodeMovieNotFound         = "MOVIE_NOT_FOUND"
	ErrCodeUpstreamFailed        = "UPSTREAM_FAILED"
	ErrCodeUpstreamMisconfigured = "UPSTREAM_MISCONFIGURED"
	ErrCodeDescriptionRequired   = "DESCRIPTION_REQUIRED"
	ErrCodeRecommendFailed       = "RECOMMEND_FAILED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeUsernameTaken         = "USERNAME_TAKEN"
)

// NewQueryRequiredError は検索クエリ未指定エラーを生成する。
func NewQueryRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeQueryRequired,
		Message:  "query is required",
		Category: "validation",
		Action:   "Type a movie name and try again.",
	}
}

// NewMovieNotFoundError は検索結果0件エラーを生成する。
func NewMovieNotFoundError(query string) *APIError {
	return &APIError{
		Code:     ErrCodeMovieNotFound,
		Message:  `No results for "` + query + `"`,
		Category: "validation",
		Action:   "Check the spelling or try another title.",
	}
}

// NewUpstreamFailedError は外部API（TMDB等）の呼び出し失敗エラーを生成する。
func NewUpstreamFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  reason,
		Category: "upstream",
		Action:   "Please wait a moment and try again.",
	}
}

// NewUpstreamMisconfiguredError は外部APIの認証情報が未設定の場合のエラーを生成する。
func NewUpstreamMisconfiguredError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamMisconfigured,
		Message:  reason,
		Category: "system",
		Action:   "Contact the administrator.",
	}
}

// NewDescriptionRequiredError はおすすめ取得時の説明文未指定エラーを生成する。
func NewDescriptionRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeDescriptionRequired,
		Message:  "description is required",
		Category: "validation",
		Action:   "Describe a movie first.",
	}
}

// NewRecommendFailedError はおすすめ生成の失敗エラーを生成する。
// rawには言語モデルの生レスポンスを渡す（無い場合は空文字列）。
func NewRecommendFailedError(reason, raw string) *APIError {
	return &APIError{
		Code:     ErrCodeRecommendFailed,
		Message:  reason,
		Category: "upstream",
		Action:   "Please try again.",
		Raw:      raw,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー名の存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid username or password",
		Category: "auth",
		Action:   "Check your username and password.",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "Send a valid JSON request body.",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  reason,
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("username %q is already taken", username),
		Category: "validation",
		Action:   "Choose another username.",
	}
}
