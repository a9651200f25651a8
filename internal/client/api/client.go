// Package api はmooviesサーバーのHTTPクライアントを提供する。
//
// 全てのリクエストは保存済みのBearerトークンを付与して送信する。
// 401を受け取った場合、ゲストモードでなければNavigatorでルートへ遷移させる。
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/moovies/internal/client/storage"
)

// ErrUnauthorized はサーバーが401を返したことを表す。
var ErrUnauthorized = errors.New("unauthorized")

const (
	sessionCookieName = "session_id"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
)

// HTTPError はサーバーが2xx以外を返したことを表す。
type HTTPError struct {
	StatusCode int
	Message    string // サーバーの error フィールド
	Code       string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Navigator は画面遷移を抽象化するインターフェース。
type Navigator interface {
	Redirect(path string)
}

// NavigatorFunc は関数をNavigatorとして扱うアダプタ。
type NavigatorFunc func(path string)

// Redirect はf(path)を呼ぶ。
func (f NavigatorFunc) Redirect(path string) { f(path) }

// Client はmooviesサーバーのクライアント。
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   storage.Storage
	nav     Navigator
	logger  *slog.Logger

	csrfMu    sync.Mutex
	csrfToken string
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithHTTPClient は内部で使うhttp.Clientを差し替える。CookieJarは引き継がれない。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New はClientを生成する。
// リダイレクトは追従せず、ログイン成功の303をそのまま受け取る。
func New(baseURL string, store storage.Storage, nav Navigator, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme: %q", u.Scheme)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		store:  store,
		nav:    nav,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// 前回のパスワードログインのセッションを復元する
	if sid, ok, err := store.Get(storage.KeySessionID); err == nil && ok && sid != "" && c.http.Jar != nil {
		c.http.Jar.SetCookies(c.baseURL, []*http.Cookie{{Name: sessionCookieName, Value: sid, Path: "/"}})
	}

	return c, nil
}

// NewRequest はベースURLからの相対パスでリクエストを生成する。
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do はBearerトークンを付与してリクエストを送信する。
//
// 401の場合はレスポンスを閉じ、ゲストモードでなければルートへ遷移させた上で
// ErrUnauthorizedを返す。それ以外のレスポンスは呼び出し側が閉じる。
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if !c.isGuest() {
			c.logger.Warn("認証が必要なためルートへ遷移します", slog.String("path", req.URL.Path))
			c.nav.Redirect("/")
		}
		return nil, ErrUnauthorized
	}
	return resp, nil
}

// send はトークンとCSRFヘッダーを付与して送信する。401の扱いは呼び出し側に任せる。
func (c *Client) send(req *http.Request) (*http.Response, error) {
	token, ok, err := c.store.Get(storage.KeyAuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth token: %w", err)
	}
	if ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if !isSafeMethod(req.Method) {
		csrf, err := c.ensureCSRFToken(req.Context())
		if err != nil {
			return nil, err
		}
		req.Header.Set(csrfHeaderName, csrf)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// ensureCSRFToken はCookie認証の状態変更リクエスト用のCSRFトークンを取得する。
func (c *Client) ensureCSRFToken(ctx context.Context) (string, error) {
	c.csrfMu.Lock()
	defer c.csrfMu.Unlock()

	if c.csrfToken != "" {
		return c.csrfToken, nil
	}

	req, err := c.NewRequest(ctx, http.MethodGet, "/api/csrf-token", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch CSRF token: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode CSRF token: %w", err)
	}
	c.csrfToken = body.Token
	return c.csrfToken, nil
}

func (c *Client) isGuest() bool {
	v, ok, err := c.store.Get(storage.KeyGuestMode)
	if err != nil {
		c.logger.Warn("ゲストモードの読み取りに失敗", slog.String("error", err.Error()))
		return false
	}
	return ok && v == "true"
}

// doJSON はDoで送信し、2xxならoutにデコードする。
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError はエラーレスポンスの {"error": "...", "code": "..."} をHTTPErrorにする。
func decodeError(resp *http.Response) error {
	httpErr := &HTTPError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil {
		httpErr.Message = body.Error
		httpErr.Code = body.Code
	}
	return httpErr
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
