package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"mime"
	"net/http"

	"github.com/hitoshi/moovies/internal/auth"
	"github.com/hitoshi/moovies/internal/model"
)

const (
	// csrf_token CookieはフロントエンドのJavaScriptから読むためHttpOnlyにしない。
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"

	csrfCookieMaxAge = 24 * 60 * 60
)

type csrfContextKey struct{}

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

func (c CSRFConfig) cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCSRFMiddleware はダブルサブミット方式のCSRF対策ミドルウェアを返す。
//
// GET, HEAD, OPTIONSは検証せず、トークンCookieが無ければ発行する。
// それ以外のメソッドはCookieとX-CSRF-Tokenヘッダー（フォーム送信ではcsrf_tokenフィールド）の一致を要求する。
// Bearerトークン付きのリクエストはCookieで認証しないため検証しない。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if token := issueCSRFCookie(w, r, config); token != "" {
					r = r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token))
				}
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := auth.BearerToken(r); ok {
				next.ServeHTTP(w, r)
				return
			}

			if reason := checkCSRFToken(r); reason != "" {
				slog.Warn("CSRF検証に失敗",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				writeCSRFError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkCSRFToken は検証に失敗した理由を返す。成功時は空文字。
func checkCSRFToken(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}

	submitted := r.Header.Get(csrfHeaderName)
	if submitted == "" && isFormPost(r) {
		submitted = r.PostFormValue(csrfFormField)
	}
	if submitted == "" {
		return "missing submitted token"
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) != 1 {
		return "token mismatch"
	}
	return ""
}

// issueCSRFCookie はトークンCookieが無い場合に新しいトークンを発行してCookieに設定する。
// 発行したトークンを返す。既にCookieがある場合や発行に失敗した場合は空文字。
func issueCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) string {
	if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
		return ""
	}
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("CSRFトークンの生成に失敗", slog.String("error", err.Error()))
		return ""
	}
	http.SetCookie(w, config.cookie(token))
	return token
}

// NewCSRFTokenHandler は GET /api/csrf-token のハンドラーを返す。
// リクエストのCookie、同じリクエストでミドルウェアが発行したトークン、新規発行の順にトークンを決める。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
			WriteJSON(w, http.StatusOK, map[string]string{"token": c.Value})
			return
		}
		if token, ok := r.Context().Value(csrfContextKey{}).(string); ok {
			WriteJSON(w, http.StatusOK, map[string]string{"token": token})
			return
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("CSRFトークンの生成に失敗", slog.String("error", err.Error()))
			WriteInternalServerError(w)
			return
		}
		http.SetCookie(w, config.cookie(token))
		WriteJSON(w, http.StatusOK, map[string]string{"token": token})
	})
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func writeCSRFError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
		Code:     "CSRF_TOKEN_INVALID",
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and try again.",
	})
}
