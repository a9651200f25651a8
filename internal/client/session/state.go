// Package session はIDプロバイダーの認証状態をローカルストレージに反映する。
//
// 状態は Authenticated / Guest / SignedOut の3つで、
// プロバイダーからの通知と画面操作をEventとしてTransitionで遷移させる。
package session

import (
	"fmt"

	"github.com/hitoshi/moovies/internal/client/storage"
)

// GuestLabel はゲストモードの表示名。
const GuestLabel = "Guest Mode"

// State は認証状態。Authenticated, Guest, SignedOut のいずれか。
type State interface {
	isState()
}

// Authenticated はIDプロバイダーでサインイン済みの状態。
type Authenticated struct {
	Token string
	Email string
}

// Guest はサインインせずに利用している状態。
type Guest struct{}

// SignedOut はサインインしていない状態。ログイン画面へ誘導される。
type SignedOut struct{}

func (Authenticated) isState() {}
func (Guest) isState()         {}
func (SignedOut) isState()     {}

// Label は状態の表示名を返す。
func Label(s State) string {
	switch s := s.(type) {
	case Authenticated:
		return s.Email
	case Guest:
		return GuestLabel
	default:
		return ""
	}
}

// Initial はストレージの内容から起動時の状態とゲストモードを復元する。
func Initial(store storage.Storage) (State, bool, error) {
	guestValue, _, err := store.Get(storage.KeyGuestMode)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read guest mode: %w", err)
	}
	guest := guestValue == "true"

	token, ok, err := store.Get(storage.KeyAuthToken)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read auth token: %w", err)
	}
	if ok && token != "" {
		email, _, err := store.Get(storage.KeyUserEmail)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read user email: %w", err)
		}
		return Authenticated{Token: token, Email: email}, guest, nil
	}
	if guest {
		return Guest{}, true, nil
	}
	return SignedOut{}, false, nil
}
