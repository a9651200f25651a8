package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/hitoshi/moovies/internal/client/storage"
)

// Navigator は画面遷移を抽象化するインターフェース。api.Navigatorと同じ形。
type Navigator interface {
	Redirect(path string)
}

// IdentityProvider は外部IDプロバイダーを抽象化するインターフェース。
// SignInとSignOutの結果はSubscribeしたコールバックに通知される。
type IdentityProvider interface {
	Subscribe(fn func(Event)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) error
	// SignInWithPopup はGoogleなどポップアップを使うサインイン。providerIDは "google.com" など。
	SignInWithPopup(ctx context.Context, providerID string) error
	SignOut(ctx context.Context) error
	// IDToken は有効なIDトークンを返す。更新した場合はProviderSignedInを通知する。
	IDToken(ctx context.Context) (string, error)
}

// Mirror はIDプロバイダーの認証状態をストレージに反映する。
type Mirror struct {
	store    storage.Storage
	nav      Navigator
	provider IdentityProvider
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	guestMode   bool
	unsubscribe func()
}

// NewMirror はストレージから状態を復元してMirrorを生成する。
func NewMirror(store storage.Storage, nav Navigator, provider IdentityProvider, logger *slog.Logger) (*Mirror, error) {
	state, guest, err := Initial(store)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		store:     store,
		nav:       nav,
		provider:  provider,
		logger:    logger,
		state:     state,
		guestMode: guest,
	}, nil
}

// Start はプロバイダーの通知の購読を開始する。
func (m *Mirror) Start() {
	unsubscribe := m.provider.Subscribe(func(ev Event) {
		if err := m.Dispatch(context.Background(), ev); err != nil {
			m.logger.Error("認証状態の反映に失敗", slog.String("error", err.Error()))
		}
	})
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
}

// Stop は購読を解除する。
func (m *Mirror) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// State は現在の状態を返す。
func (m *Mirror) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Label は現在の状態の表示名を返す。
func (m *Mirror) Label() string {
	return Label(m.State())
}

// SignIn はプロバイダーでサインインする。状態はプロバイダーの通知で更新される。
func (m *Mirror) SignIn(ctx context.Context, email, password string) error {
	return m.provider.SignIn(ctx, email, password)
}

// SignInWithPopup はポップアップを使うプロバイダーでサインインする。
func (m *Mirror) SignInWithPopup(ctx context.Context, providerID string) error {
	return m.provider.SignInWithPopup(ctx, providerID)
}

// Refresh はサインイン中であればプロバイダーからIDトークンを取り直す。
// 更新されたトークンはProviderSignedInの通知でストレージに保存される。
// プロバイダーが認証情報を持っていない場合は何もしない。
func (m *Mirror) Refresh(ctx context.Context) error {
	if _, ok := m.State().(Authenticated); !ok {
		return nil
	}
	if _, err := m.provider.IDToken(ctx); err != nil && !errors.Is(err, ErrNotSignedIn) {
		return fmt.Errorf("failed to refresh ID token: %w", err)
	}
	return nil
}

// ContinueAsGuest はゲストモードに切り替える。
func (m *Mirror) ContinueAsGuest(ctx context.Context) error {
	return m.Dispatch(ctx, GuestRequested{})
}

// SignOut はサインアウトする。
func (m *Mirror) SignOut(ctx context.Context) error {
	return m.Dispatch(ctx, SignOutRequested{})
}

// Dispatch はeventで状態を遷移させ、副作用を適用する。
// 副作用はロックの外で適用するため、プロバイダーが同期的に通知してもよい。
func (m *Mirror) Dispatch(ctx context.Context, event Event) error {
	m.mu.Lock()
	next, effects := Transition(m.state, m.guestMode, event)
	m.state = next
	for _, e := range effects {
		if g, ok := e.(SetGuestMode); ok {
			m.guestMode = g.Enabled
		}
	}
	m.mu.Unlock()

	m.logger.Debug("認証状態を更新",
		slog.String("event", fmt.Sprintf("%T", event)),
		slog.String("state", fmt.Sprintf("%T", next)),
	)

	for _, e := range effects {
		if err := m.apply(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) apply(ctx context.Context, effect Effect) error {
	switch e := effect.(type) {
	case StoreToken:
		return m.set(storage.KeyAuthToken, e.Token)
	case ClearToken:
		return m.remove(storage.KeyAuthToken)
	case StoreEmail:
		return m.set(storage.KeyUserEmail, e.Email)
	case ClearEmail:
		return m.remove(storage.KeyUserEmail)
	case SetGuestMode:
		return m.set(storage.KeyGuestMode, strconv.FormatBool(e.Enabled))
	case Redirect:
		m.nav.Redirect(e.Path)
		return nil
	case SignOutProvider:
		if err := m.provider.SignOut(ctx); err != nil {
			return fmt.Errorf("provider sign-out failed: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown effect %T", effect)
	}
}

func (m *Mirror) set(key, value string) error {
	if err := m.store.Set(key, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (m *Mirror) remove(key string) error {
	if err := m.store.Remove(key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
