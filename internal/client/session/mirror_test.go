package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/moovies/internal/client/storage"
)

// fakeProvider はSignIn/SignOutを同期的に通知するIdentityProvider。
type fakeProvider struct {
	listener  func(Event)
	signInErr error
	signOuts  int
	unsubbed  bool

	refreshedToken string
	idTokenErr     error
	idTokenCalls   int
}

func (p *fakeProvider) Subscribe(fn func(Event)) func() {
	p.listener = fn
	return func() { p.unsubbed = true }
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) error {
	if p.signInErr != nil {
		return p.signInErr
	}
	p.listener(ProviderSignedIn{Token: "tok-" + email, Email: email})
	return nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.signOuts++
	p.listener(ProviderSignedOut{})
	return nil
}

func (p *fakeProvider) SignInWithPopup(ctx context.Context, providerID string) error {
	return ErrPopupUnsupported
}

func (p *fakeProvider) IDToken(ctx context.Context) (string, error) {
	p.idTokenCalls++
	if p.idTokenErr != nil {
		return "", p.idTokenErr
	}
	if p.refreshedToken == "" {
		return "", ErrNotSignedIn
	}
	p.listener(ProviderSignedIn{Token: p.refreshedToken, Email: "a@example.com"})
	return p.refreshedToken, nil
}

type recordingNavigator struct {
	paths []string
}

func (n *recordingNavigator) Redirect(path string) {
	n.paths = append(n.paths, path)
}

func newTestMirror(t *testing.T, store storage.Storage) (*Mirror, *fakeProvider, *recordingNavigator) {
	t.Helper()
	provider := &fakeProvider{}
	nav := &recordingNavigator{}
	m, err := NewMirror(store, nav, provider, nil)
	if err != nil {
		t.Fatalf("NewMirror() error: %v", err)
	}
	m.Start()
	t.Cleanup(m.Stop)
	return m, provider, nav
}

func get(store storage.Storage, key string) string {
	v, _, _ := store.Get(key)
	return v
}

func TestMirror_SignInStoresTokenAndEmail(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.Set(storage.KeyGuestMode, "true")
	m, _, nav := newTestMirror(t, store)

	if err := m.SignIn(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	if get(store, storage.KeyAuthToken) != "tok-a@example.com" {
		t.Errorf("authToken = %q", get(store, storage.KeyAuthToken))
	}
	if get(store, storage.KeyUserEmail) != "a@example.com" {
		t.Errorf("userEmail = %q", get(store, storage.KeyUserEmail))
	}
	if get(store, storage.KeyGuestMode) != "false" {
		t.Errorf("サインインでゲストモードを解除すること: %q", get(store, storage.KeyGuestMode))
	}
	if m.Label() != "a@example.com" {
		t.Errorf("Label() = %q", m.Label())
	}
	if len(nav.paths) != 0 {
		t.Errorf("サインインでは遷移しないこと: %v", nav.paths)
	}
}

func TestMirror_SignInError(t *testing.T) {
	store := storage.NewMemoryStorage()
	m, provider, _ := newTestMirror(t, store)
	provider.signInErr = errors.New("INVALID_PASSWORD")

	if err := m.SignIn(context.Background(), "a@example.com", "bad"); err == nil {
		t.Fatal("プロバイダーのエラーを返すこと")
	}
	if _, ok := m.State().(SignedOut); !ok {
		t.Errorf("State() = %T, want SignedOut", m.State())
	}
}

func TestMirror_SignOut_RedirectsToRoot(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.Set(storage.KeyAuthToken, "tok")
	store.Set(storage.KeyUserEmail, "a@example.com")
	m, provider, nav := newTestMirror(t, store)

	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error: %v", err)
	}

	if provider.signOuts != 1 {
		t.Errorf("プロバイダーのSignOut呼び出し = %d, want 1", provider.signOuts)
	}
	if _, ok, _ := store.Get(storage.KeyAuthToken); ok {
		t.Error("authToken を削除すること")
	}
	if _, ok, _ := store.Get(storage.KeyUserEmail); ok {
		t.Error("userEmail を削除すること")
	}
	if diff := cmp.Diff([]string{"/"}, nav.paths); diff != "" {
		t.Errorf("redirects mismatch (-want +got):\n%s", diff)
	}
	if m.Label() != "" {
		t.Errorf("Label() = %q, want empty", m.Label())
	}
}

func TestMirror_ProviderSignedOutInGuestMode_StaysOnPage(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.Set(storage.KeyGuestMode, "true")
	store.Set(storage.KeyAuthToken, "stale")
	m, provider, nav := newTestMirror(t, store)

	// プロバイダー側のセッション失効を模擬
	provider.listener(ProviderSignedOut{})

	if _, ok, _ := store.Get(storage.KeyAuthToken); ok {
		t.Error("authToken を削除すること")
	}
	if len(nav.paths) != 0 {
		t.Errorf("ゲストモードでは遷移しないこと: %v", nav.paths)
	}
	if m.Label() != GuestLabel {
		t.Errorf("Label() = %q, want %q", m.Label(), GuestLabel)
	}
}

func TestMirror_ContinueAsGuest(t *testing.T) {
	store := storage.NewMemoryStorage()
	m, _, nav := newTestMirror(t, store)

	if err := m.ContinueAsGuest(context.Background()); err != nil {
		t.Fatalf("ContinueAsGuest() error: %v", err)
	}

	if get(store, storage.KeyGuestMode) != "true" {
		t.Errorf("guestMode = %q, want true", get(store, storage.KeyGuestMode))
	}
	if diff := cmp.Diff([]string{"/app"}, nav.paths); diff != "" {
		t.Errorf("redirects mismatch (-want +got):\n%s", diff)
	}
	if m.Label() != GuestLabel {
		t.Errorf("Label() = %q", m.Label())
	}
}

func TestMirror_Stop_Unsubscribes(t *testing.T) {
	store := storage.NewMemoryStorage()
	provider := &fakeProvider{}
	m, err := NewMirror(store, &recordingNavigator{}, provider, nil)
	if err != nil {
		t.Fatalf("NewMirror() error: %v", err)
	}
	m.Start()
	m.Stop()

	if !provider.unsubbed {
		t.Error("Stop() で購読を解除すること")
	}
}

func TestMirror_Refresh(t *testing.T) {
	tests := []struct {
		name      string
		stored    map[string]string
		refreshed string
		idErr     error
		wantErr   bool
		wantCalls int
		wantToken string
	}{
		{
			name:      "サインイン中はトークンを取り直して保存する",
			stored:    map[string]string{storage.KeyAuthToken: "old", storage.KeyUserEmail: "a@example.com"},
			refreshed: "new",
			wantCalls: 1,
			wantToken: "new",
		},
		{
			name:      "プロバイダーに認証情報が無ければ何もしない",
			stored:    map[string]string{storage.KeyAuthToken: "old"},
			wantCalls: 1,
			wantToken: "old",
		},
		{
			name:      "更新失敗はエラー",
			stored:    map[string]string{storage.KeyAuthToken: "old"},
			idErr:     errors.New("network down"),
			wantErr:   true,
			wantCalls: 1,
			wantToken: "old",
		},
		{
			name:      "ゲストは問い合わせない",
			stored:    map[string]string{storage.KeyGuestMode: "true"},
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage()
			for k, v := range tt.stored {
				store.Set(k, v)
			}
			m, provider, _ := newTestMirror(t, store)
			provider.refreshedToken = tt.refreshed
			provider.idTokenErr = tt.idErr

			err := m.Refresh(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Refresh() error = %v, wantErr %v", err, tt.wantErr)
			}
			if provider.idTokenCalls != tt.wantCalls {
				t.Errorf("IDToken calls = %d, want %d", provider.idTokenCalls, tt.wantCalls)
			}
			if got := get(store, storage.KeyAuthToken); got != tt.wantToken {
				t.Errorf("authToken = %q, want %q", got, tt.wantToken)
			}
		})
	}
}
