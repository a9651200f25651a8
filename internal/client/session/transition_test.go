package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/moovies/internal/client/storage"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name        string
		state       State
		guestMode   bool
		event       Event
		wantState   State
		wantEffects []Effect
	}{
		{
			name:      "サインイン",
			state:     SignedOut{},
			event:     ProviderSignedIn{Token: "tok", Email: "a@example.com"},
			wantState: Authenticated{Token: "tok", Email: "a@example.com"},
			wantEffects: []Effect{
				StoreToken{Token: "tok"},
				StoreEmail{Email: "a@example.com"},
				SetGuestMode{Enabled: false},
			},
		},
		{
			name:      "ゲストからのサインインはゲストモードを解除",
			state:     Guest{},
			guestMode: true,
			event:     ProviderSignedIn{Token: "tok", Email: "a@example.com"},
			wantState: Authenticated{Token: "tok", Email: "a@example.com"},
			wantEffects: []Effect{
				StoreToken{Token: "tok"},
				StoreEmail{Email: "a@example.com"},
				SetGuestMode{Enabled: false},
			},
		},
		{
			name:        "ゲストモードでのサインアウト通知は画面に留まる",
			state:       Guest{},
			guestMode:   true,
			event:       ProviderSignedOut{},
			wantState:   Guest{},
			wantEffects: []Effect{ClearToken{}},
		},
		{
			name:      "通常のサインアウト通知はルートへ遷移",
			state:     Authenticated{Token: "tok", Email: "a@example.com"},
			event:     ProviderSignedOut{},
			wantState: SignedOut{},
			wantEffects: []Effect{
				ClearToken{},
				ClearEmail{},
				Redirect{Path: "/"},
			},
		},
		{
			name:      "ゲストとして続ける",
			state:     SignedOut{},
			event:     GuestRequested{},
			wantState: Guest{},
			wantEffects: []Effect{
				SetGuestMode{Enabled: true},
				ClearToken{},
				ClearEmail{},
				Redirect{Path: "/app"},
			},
		},
		{
			name:      "サインアウト操作はプロバイダーに委ねる",
			state:     Authenticated{Token: "tok"},
			guestMode: false,
			event:     SignOutRequested{},
			wantState: Authenticated{Token: "tok"},
			wantEffects: []Effect{
				SetGuestMode{Enabled: false},
				SignOutProvider{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotState, gotEffects := Transition(tt.state, tt.guestMode, tt.event)

			if diff := cmp.Diff(tt.wantState, gotState); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantEffects, gotEffects); diff != "" {
				t.Errorf("effects mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Authenticated{Token: "tok", Email: "a@example.com"}, "a@example.com"},
		{Guest{}, "Guest Mode"},
		{SignedOut{}, ""},
	}
	for _, tt := range tests {
		if got := Label(tt.state); got != tt.want {
			t.Errorf("Label(%T) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestInitial(t *testing.T) {
	tests := []struct {
		name      string
		values    map[string]string
		wantState State
		wantGuest bool
	}{
		{"空", nil, SignedOut{}, false},
		{"トークンあり", map[string]string{storage.KeyAuthToken: "tok", storage.KeyUserEmail: "a@example.com"}, Authenticated{Token: "tok", Email: "a@example.com"}, false},
		{"ゲスト", map[string]string{storage.KeyGuestMode: "true"}, Guest{}, true},
		{"guestMode=false", map[string]string{storage.KeyGuestMode: "false"}, SignedOut{}, false},
		{"空のトークン", map[string]string{storage.KeyAuthToken: ""}, SignedOut{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage()
			for k, v := range tt.values {
				store.Set(k, v)
			}

			state, guest, err := Initial(store)
			if err != nil {
				t.Fatalf("Initial() error: %v", err)
			}
			if diff := cmp.Diff(tt.wantState, state); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}
			if guest != tt.wantGuest {
				t.Errorf("guest = %v, want %v", guest, tt.wantGuest)
			}
		})
	}
}
