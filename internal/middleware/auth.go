// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moovies/internal/auth"
	"github.com/hitoshi/moovies/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
var identityContextKey = contextKey("identity")

// RequestAuthenticator はリクエストから呼び出し元を特定するインターフェース。
// auth.Authenticatorを抽象化する。
type RequestAuthenticator interface {
	Authenticate(r *http.Request) (*model.Identity, error)
}

// NewAuthMiddleware はBearerトークンまたはセッションCookieから呼び出し元を特定し、
// リクエストコンテキストに注入するミドルウェアを返す。
//
// 不正・期限切れのBearerトークンは常に401とする。
// 認証情報が無いリクエストはrequiredがtrueの場合のみ401とし、
// falseの場合は匿名のまま通過させる。
func NewAuthMiddleware(authenticator RequestAuthenticator, required bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authenticator.Authenticate(r)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
				return

			case errors.Is(err, auth.ErrNoCredentials):
				if required {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Authentication required"))
					return
				}
				next.ServeHTTP(w, r)
				return

			case errors.Is(err, auth.ErrIDTokenExpired):
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Token expired"))
				return

			default:
				slog.Warn("authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Invalid token"))
				return
			}
		})
	}
}

// IdentityFromContext はリクエストコンテキストから呼び出し元を取得する。
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	return identity, ok && identity != nil
}

// ContextWithIdentity はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	recordIdentity(ctx, identity)
	return context.WithValue(ctx, identityContextKey, identity)
}

// UserIDFromContext はリクエストコンテキストから呼び出し元のIDを取得する。
// 認証ミドルウェアで認証済みとなったリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.UID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.UID, nil
}
