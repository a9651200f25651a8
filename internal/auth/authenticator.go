package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/moovies/internal/model"
)

// SessionCookieName はパスワードログインで発行するセッションCookie名。
const SessionCookieName = "session_id"

// ErrNoCredentials はリクエストに認証情報が含まれないことを表す。
var ErrNoCredentials = errors.New("no credentials")

// TokenVerifier はBearerトークンを検証するインターフェース。
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*model.Identity, error)
}

// SessionResolver はセッションIDから呼び出し元を解決するインターフェース。
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*model.Identity, error)
}

// Authenticator はBearerトークンとセッションCookieの両方を扱う認証器。
type Authenticator struct {
	verifier TokenVerifier
	sessions SessionResolver
}

// NewAuthenticator はAuthenticatorを生成する。sessionsはnilでもよい。
func NewAuthenticator(verifier TokenVerifier, sessions SessionResolver) *Authenticator {
	return &Authenticator{verifier: verifier, sessions: sessions}
}

// Authenticate はリクエストの呼び出し元を特定する。
//
// Authorization: Bearer ヘッダーがあればFirebase IDトークンとして検証し、
// 不正・期限切れの場合はエラーを返す。ヘッダーが無い場合はセッションCookieを参照する。
// Cookieが無い、またはセッションが期限切れの場合はErrNoCredentialsを返す。
func (a *Authenticator) Authenticate(r *http.Request) (*model.Identity, error) {
	if token, ok := BearerToken(r); ok {
		return a.verifier.Verify(r.Context(), token)
	}

	if a.sessions == nil {
		return nil, ErrNoCredentials
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoCredentials
	}

	identity, err := a.sessions.ResolveSession(r.Context(), cookie.Value)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
