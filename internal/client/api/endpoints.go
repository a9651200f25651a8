package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hitoshi/moovies/internal/client/storage"
)

// Movie はクエリに最も合う映画と出演者・レビューを取得する。
// エラーレスポンスにメッセージが無い場合は "Lookup failed for <query>" とする。
func (c *Client) Movie(ctx context.Context, query string) (*MovieDetails, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, "/api/movie?query="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}

	var details MovieDetails
	if err := c.doJSON(req, &details); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Message == "" {
			httpErr.Message = fmt.Sprintf("Lookup failed for %s", query)
		}
		return nil, err
	}
	return &details, nil
}

// Recommend は説明文に合う映画タイトルを取得する。
func (c *Client) Recommend(ctx context.Context, description string) ([]string, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, "/api/recommend", map[string]string{"description": description})
	if err != nil {
		return nil, err
	}

	var body struct {
		Recommendations []string `json:"recommendations"`
	}
	if err := c.doJSON(req, &body); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Message == "" {
			httpErr.Message = "Request failed."
		}
		return nil, err
	}
	return body.Recommendations, nil
}

// RandomMovies はヒーロー背景用の映画一覧を取得する。
func (c *Client) RandomMovies(ctx context.Context) ([]RandomMovie, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, "/api/random-movies", nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Results []RandomMovie `json:"results"`
	}
	if err := c.doJSON(req, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

// VerifyToken は保存済みのBearerトークンをサーバーで検証する。
func (c *Client) VerifyToken(ctx context.Context) (*VerifiedUser, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, "/api/verify-token", nil)
	if err != nil {
		return nil, err
	}

	var user VerifiedUser
	if err := c.doJSON(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login はユーザー名とパスワードでサーバーにログインし、セッションを保存する。
// ログイン画面は401でリダイレクトしないため、Doを経由しない。
func (c *Client) Login(ctx context.Context, username, password string) error {
	req, err := c.NewRequest(ctx, http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusSeeOther && resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if c.http.Jar == nil {
		return errors.New("login requires a cookie jar")
	}

	for _, cookie := range c.http.Jar.Cookies(c.baseURL) {
		if cookie.Name == sessionCookieName {
			if err := c.store.Set(storage.KeySessionID, cookie.Value); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			return nil
		}
	}
	return errors.New("login response did not set a session cookie")
}

// Logout はサーバーのセッションを破棄し、保存済みのセッションを削除する。
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.NewRequest(ctx, http.MethodPost, "/api/logout", nil)
	if err != nil {
		return err
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	drain(resp)

	if err := c.store.Remove(storage.KeySessionID); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
