package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moovies/internal/client/storage"
)

const (
	// DefaultIdentityToolkitURL はメール/パスワード認証のエンドポイント。
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	// DefaultSecureTokenURL はIDトークン更新のエンドポイント。
	DefaultSecureTokenURL = "https://securetoken.googleapis.com/v1"

	// tokenRefreshMargin は有効期限のこの時間前からIDトークンを更新する。
	tokenRefreshMargin = 5 * time.Minute

	// GoogleProviderID はGoogleアカウントでのサインインを表すプロバイダーID。
	GoogleProviderID = "google.com"
)

var (
	// ErrPopupUnsupported はポップアップによるサインイン（Googleなど）がブラウザ専用であることを表す。
	ErrPopupUnsupported = errors.New("popup sign-in is only available in the browser")
	// ErrNotSignedIn はサインインしていない状態でIDトークンを要求したことを表す。
	ErrNotSignedIn = errors.New("not signed in")
	// ErrMissingAPIKey はFirebaseのWeb APIキーが未設定であることを表す。
	ErrMissingAPIKey = errors.New("FIREBASE_API_KEY is not set")
)

// FirebaseError はIdentity Toolkitが返したエラー。
type FirebaseError struct {
	StatusCode int
	Message    string // EMAIL_NOT_FOUND, INVALID_PASSWORD など
}

func (e *FirebaseError) Error() string {
	return fmt.Sprintf("firebase auth error %d: %s", e.StatusCode, e.Message)
}

// FirebaseConfig はFirebaseProviderの設定。
type FirebaseConfig struct {
	APIKey             string
	IdentityToolkitURL string
	SecureTokenURL     string

	// Store が設定されている場合、認証情報をKeyFirebaseCredentialに保存し、生成時に復元する。
	Store storage.Storage
}

// storedCredential はKeyFirebaseCredentialに保存する内容。
type storedCredential struct {
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// FirebaseProvider はFirebase AuthenticationのREST APIを使うIdentityProvider。
type FirebaseProvider struct {
	httpClient *http.Client
	config     FirebaseConfig
	now        func() time.Time

	mu           sync.Mutex
	idToken      string
	refreshToken string
	email        string
	expiresAt    time.Time

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
}

// NewFirebaseProvider はFirebaseProviderを生成する。
// cfg.Storeに前回の認証情報があれば復元する。読めない認証情報は無視する。
func NewFirebaseProvider(httpClient *http.Client, cfg FirebaseConfig) *FirebaseProvider {
	if cfg.IdentityToolkitURL == "" {
		cfg.IdentityToolkitURL = DefaultIdentityToolkitURL
	}
	if cfg.SecureTokenURL == "" {
		cfg.SecureTokenURL = DefaultSecureTokenURL
	}
	cfg.IdentityToolkitURL = strings.TrimRight(cfg.IdentityToolkitURL, "/")
	cfg.SecureTokenURL = strings.TrimRight(cfg.SecureTokenURL, "/")
	p := &FirebaseProvider{
		httpClient: httpClient,
		config:     cfg,
		now:        time.Now,
		listeners:  make(map[int]func(Event)),
	}
	if c, ok := p.loadCredential(); ok {
		p.idToken = c.IDToken
		p.refreshToken = c.RefreshToken
		p.email = c.Email
		p.expiresAt = c.ExpiresAt
	}
	return p
}

func (p *FirebaseProvider) loadCredential() (storedCredential, bool) {
	var c storedCredential
	if p.config.Store == nil {
		return c, false
	}
	raw, ok, err := p.config.Store.Get(storage.KeyFirebaseCredential)
	if err != nil || !ok || raw == "" {
		return c, false
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil || c.RefreshToken == "" {
		return storedCredential{}, false
	}
	return c, true
}

// saveCredential は現在の認証情報を保存する。サインアウト後は削除する。
func (p *FirebaseProvider) saveCredential() error {
	if p.config.Store == nil {
		return nil
	}
	p.mu.Lock()
	c := storedCredential{
		IDToken:      p.idToken,
		RefreshToken: p.refreshToken,
		Email:        p.email,
		ExpiresAt:    p.expiresAt,
	}
	p.mu.Unlock()

	if c.RefreshToken == "" {
		return p.config.Store.Remove(storage.KeyFirebaseCredential)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return p.config.Store.Set(storage.KeyFirebaseCredential, string(data))
}

// Subscribe は認証状態の変化を受け取るコールバックを登録する。
func (p *FirebaseProvider) Subscribe(fn func(Event)) func() {
	p.listenersMu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.listenersMu.Unlock()

	return func() {
		p.listenersMu.Lock()
		delete(p.listeners, id)
		p.listenersMu.Unlock()
	}
}

func (p *FirebaseProvider) notify(ev Event) {
	p.listenersMu.Lock()
	fns := make([]func(Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// SignInWithPopup はブラウザのポップアップを使うプロバイダー（Googleなど）でのサインイン。
// CLIでは利用できない。
func (p *FirebaseProvider) SignInWithPopup(ctx context.Context, providerID string) error {
	return fmt.Errorf("%s: %w", providerID, ErrPopupUnsupported)
}

// SignIn はメールアドレスとパスワードでサインインし、ProviderSignedInを通知する。
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) error {
	if p.config.APIKey == "" {
		return ErrMissingAPIKey
	}

	body, err := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return err
	}
	endpoint := p.config.IdentityToolkitURL + "/accounts:signInWithPassword?key=" + url.QueryEscape(p.config.APIKey)

	var res struct {
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		Email        string `json:"email"`
		ExpiresIn    string `json:"expiresIn"`
	}
	if err := p.post(ctx, endpoint, "application/json", bytes.NewReader(body), &res); err != nil {
		return err
	}

	p.mu.Lock()
	p.idToken = res.IDToken
	p.refreshToken = res.RefreshToken
	p.email = res.Email
	p.expiresAt = p.now().Add(parseExpiresIn(res.ExpiresIn))
	p.mu.Unlock()

	if err := p.saveCredential(); err != nil {
		return fmt.Errorf("failed to save firebase credential: %w", err)
	}
	p.notify(ProviderSignedIn{Token: res.IDToken, Email: res.Email})
	return nil
}

// SignOut はローカルの認証情報を破棄し、ProviderSignedOutを通知する。
func (p *FirebaseProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.idToken = ""
	p.refreshToken = ""
	p.email = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()

	err := p.saveCredential()
	p.notify(ProviderSignedOut{})
	if err != nil {
		return fmt.Errorf("failed to remove firebase credential: %w", err)
	}
	return nil
}

// IDToken は有効なIDトークンを返す。期限が近い場合はリフレッシュトークンで更新し、
// ProviderSignedInを通知する。
func (p *FirebaseProvider) IDToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	token, refresh, email, expiresAt := p.idToken, p.refreshToken, p.email, p.expiresAt
	p.mu.Unlock()

	if token == "" {
		return "", ErrNotSignedIn
	}
	if p.now().Add(tokenRefreshMargin).Before(expiresAt) {
		return token, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
	}
	endpoint := p.config.SecureTokenURL + "/token?key=" + url.QueryEscape(p.config.APIKey)

	var res struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
	}
	if err := p.post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &res); err != nil {
		return "", fmt.Errorf("failed to refresh ID token: %w", err)
	}

	p.mu.Lock()
	p.idToken = res.IDToken
	p.refreshToken = res.RefreshToken
	p.expiresAt = p.now().Add(parseExpiresIn(res.ExpiresIn))
	p.mu.Unlock()

	if err := p.saveCredential(); err != nil {
		return "", fmt.Errorf("failed to save firebase credential: %w", err)
	}
	p.notify(ProviderSignedIn{Token: res.IDToken, Email: email})
	return res.IDToken, nil
}

func (p *FirebaseProvider) post(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("firebase request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read firebase response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		fbErr := &FirebaseError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, &errBody) == nil {
			fbErr.Message = errBody.Error.Message
		}
		return fbErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode firebase response: %w", err)
	}
	return nil
}

// parseExpiresIn は秒数の文字列を期間に変換する。解釈できない場合は1時間とする。
func parseExpiresIn(s string) time.Duration {
	sec, err := strconv.Atoi(s)
	if err != nil || sec <= 0 {
		return time.Hour
	}
	return time.Duration(sec) * time.Second
}

var _ IdentityProvider = (*FirebaseProvider)(nil)
