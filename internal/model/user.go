// Package model はドメインモデルを定義する。
package model

import "time"

// User はパスワードログイン用のローカルユーザーを表す。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はパスワードログインで発行されるセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Identity は認証済みリクエストの呼び出し元を表す。
// Firebase IDトークンとセッションCookieのどちらで認証されたかをProviderで区別する。
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Provider      string // "firebase" または "session"
}
