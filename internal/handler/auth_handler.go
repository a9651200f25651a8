package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moovies/internal/auth"
	"github.com/hitoshi/moovies/internal/middleware"
	"github.com/hitoshi/moovies/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int    // セッションCookieの有効期間（秒）
	AfterLogin    string // ログイン成功後の遷移先
	AfterLogout   string // ログアウト後の遷移先
}

// AuthHandler はパスワードログインとトークン検証のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	verifier auth.TokenVerifier
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, verifier auth.TokenVerifier, config AuthHandlerConfig) *AuthHandler {
	if config.AfterLogin == "" {
		config.AfterLogin = "/app"
	}
	if config.AfterLogout == "" {
		config.AfterLogout = "/"
	}
	return &AuthHandler{
		service:  service,
		verifier: verifier,
		config:   config,
	}
}

// Login はユーザー名とパスワードでログインし、セッションCookieを発行する。
// POST /api/login
//
// JSONとフォーム送信のどちらも受け付け、成功時は303でアプリ画面へリダイレクトする。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isFormRequest(r) {
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	} else if err := decodeJSON(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Request body must be JSON"))
		return
	}

	if err := validate.Struct(req); err != nil {
		slog.Info("ログインリクエストの検証に失敗",
			slog.String("field", firstValidationField(err)),
		)
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Username and password are required"))
		return
	}

	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.ID, h.config.SessionMaxAge))
	http.Redirect(w, r, h.config.AfterLogin, http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, h.sessionCookie("", -1))
	http.Redirect(w, r, h.config.AfterLogout, http.StatusSeeOther)
}

// VerifyToken はBearerトークンを検証し、呼び出し元の情報を返す。
// POST /api/verify-token
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		middleware.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "No token provided"})
		return
	}

	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		slog.Info("IDトークンの検証に失敗", slog.String("error", err.Error()))
		message := err.Error()
		if errors.Is(err, auth.ErrIDTokenExpired) {
			message = "Token expired"
		}
		middleware.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": message})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"uid":            identity.UID,
		"email":          identity.Email,
		"email_verified": identity.EmailVerified,
	})
}

func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
