package session

// Event は状態遷移のきっかけ。
type Event interface {
	isEvent()
}

// ProviderSignedIn はIDプロバイダーがサインインを通知したことを表す。
type ProviderSignedIn struct {
	Token string
	Email string
}

// ProviderSignedOut はIDプロバイダーがサインアウトを通知したことを表す。
type ProviderSignedOut struct{}

// GuestRequested は「ゲストとして続ける」操作。
type GuestRequested struct{}

// SignOutRequested はサインアウトボタンの操作。
type SignOutRequested struct{}

func (ProviderSignedIn) isEvent()  {}
func (ProviderSignedOut) isEvent() {}
func (GuestRequested) isEvent()    {}
func (SignOutRequested) isEvent()  {}

// Effect は遷移に伴う副作用。Mirrorが適用する。
type Effect interface {
	isEffect()
}

// StoreToken はauthTokenを保存する。
type StoreToken struct{ Token string }

// ClearToken はauthTokenを削除する。
type ClearToken struct{}

// StoreEmail はuserEmailを保存する。
type StoreEmail struct{ Email string }

// ClearEmail はuserEmailを削除する。
type ClearEmail struct{}

// SetGuestMode はguestModeを保存する。
type SetGuestMode struct{ Enabled bool }

// Redirect は画面を遷移させる。
type Redirect struct{ Path string }

// SignOutProvider はIDプロバイダーのサインアウトを呼ぶ。
// プロバイダーはProviderSignedOutを通知し、残りの後始末はその遷移で行う。
type SignOutProvider struct{}

func (StoreToken) isEffect()      {}
func (ClearToken) isEffect()      {}
func (StoreEmail) isEffect()      {}
func (ClearEmail) isEffect()      {}
func (SetGuestMode) isEffect()    {}
func (Redirect) isEffect()        {}
func (SignOutProvider) isEffect() {}

// Transition は現在の状態とゲストモードにeventを適用し、次の状態と副作用を返す。
// 副作用は返すだけで実行しない。
func Transition(state State, guestMode bool, event Event) (State, []Effect) {
	switch ev := event.(type) {
	case ProviderSignedIn:
		return Authenticated{Token: ev.Token, Email: ev.Email}, []Effect{
			StoreToken{Token: ev.Token},
			StoreEmail{Email: ev.Email},
			SetGuestMode{Enabled: false},
		}

	case ProviderSignedOut:
		if guestMode {
			// ゲストは画面に留まる
			return Guest{}, []Effect{ClearToken{}}
		}
		return SignedOut{}, []Effect{
			ClearToken{},
			ClearEmail{},
			Redirect{Path: "/"},
		}

	case GuestRequested:
		return Guest{}, []Effect{
			SetGuestMode{Enabled: true},
			ClearToken{},
			ClearEmail{},
			Redirect{Path: "/app"},
		}

	case SignOutRequested:
		return state, []Effect{
			SetGuestMode{Enabled: false},
			SignOutProvider{},
		}

	default:
		return state, nil
	}
}
