// Package tmdb はThe Movie Database (TMDB) API v3 のクライアントを提供する。
// 検索・クレジット・レビュー・トレンドの取得を、レスポンスキャッシュ、
// 送信レート制限、サーキットブレーカー付きで行う。
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/moovies/internal/metrics"
	"github.com/hitoshi/moovies/internal/model"
)

const (
	// DefaultBaseURL はTMDB API v3のベースURL。
	DefaultBaseURL = "https://api.themoviedb.org/3"

	cacheName       = "tmdb"
	maxResponseSize = 5 << 20
)

// トレンドの集計期間
const (
	WindowDay  = "day"
	WindowWeek = "week"
)

// ErrMissingToken はTMDB読み取りトークンが未設定であることを表す。
var ErrMissingToken = errors.New("TMDB_READ_TOKEN is not set.")

// StatusError はTMDBが200以外のステータスを返したことを表す。
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s for path %s", e.StatusCode, http.StatusText(e.StatusCode), e.Path)
}

// Config はClientの設定。
type Config struct {
	BaseURL    string
	ReadToken  string
	CacheTTL   time.Duration
	RatePerSec float64 // 0以下の場合は制限なし
}

// TrendingMovie はトレンド一覧の1件。
// TV作品が混ざった場合に備えてnameも保持する。
type TrendingMovie struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	BackdropPath string `json:"backdrop_path"`
	PosterPath   string `json:"poster_path"`
}

type searchResponse struct {
	Results []model.Movie `json:"results"`
}

type creditsResponse struct {
	Cast []model.CastMember `json:"cast"`
}

type reviewsResponse struct {
	Results []model.Review `json:"results"`
}

type trendingResponse struct {
	Results []TrendingMovie `json:"results"`
}

// Client はTMDB APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector

	baseURL string
	token   string

	cache   *cache.Cache
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewClient はClientの新しいインスタンスを生成する。
// mcがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config, mc metrics.MetricsCollector) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if mc == nil {
		mc = metrics.Nop{}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = max(1, int(cfg.RatePerSec))
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    mc,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.ReadToken,
		cache:      cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    newBreaker(logger),
	}
}

// newBreaker はTMDB呼び出し用のサーキットブレーカーを生成する。
// 4xxは呼び出し側の問題なので失敗として数えない。
func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "tmdb",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

// SearchMovie はフリーテキストで映画を検索し、TMDBの並び順のまま結果を返す。
func (c *Client) SearchMovie(ctx context.Context, query string) ([]model.Movie, error) {
	var resp searchResponse
	if err := c.get(ctx, "/search/movie", url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// MovieCredits は映画の出演者一覧を返す。
func (c *Client) MovieCredits(ctx context.Context, movieID int) ([]model.CastMember, error) {
	var resp creditsResponse
	if err := c.get(ctx, "/movie/"+strconv.Itoa(movieID)+"/credits", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cast, nil
}

// MovieReviews は映画のユーザーレビュー（1ページ目）を返す。
func (c *Client) MovieReviews(ctx context.Context, movieID int) ([]model.Review, error) {
	var resp reviewsResponse
	if err := c.get(ctx, "/movie/"+strconv.Itoa(movieID)+"/reviews", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// TrendingMovies はトレンド映画の一覧を返す。windowはWindowDayかWindowWeek。
func (c *Client) TrendingMovies(ctx context.Context, window string) ([]TrendingMovie, error) {
	if window != WindowDay && window != WindowWeek {
		return nil, fmt.Errorf("unsupported trending window %q", window)
	}
	var resp trendingResponse
	if err := c.get(ctx, "/trending/movie/"+window, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// get はpathにGETリクエストを送り、レスポンスJSONをoutにデコードする。
// 成功したレスポンスボディはキャッシュし、有効期間内は再取得しない。
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.token == "" {
		return ErrMissingToken
	}

	key := path
	if len(params) > 0 {
		key += "?" + params.Encode()
	}

	if cached, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheLookup(cacheName, true)
		return decode(cached.([]byte), out)
	}
	c.metrics.RecordCacheLookup(cacheName, false)

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, path, params)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.RecordUpstreamRequest(metrics.ServiceTMDB, metrics.OutcomeCircuitOpen)
		return fmt.Errorf("TMDB unavailable: %w", err)
	case err != nil:
		c.metrics.RecordUpstreamRequest(metrics.ServiceTMDB, metrics.OutcomeError)
		c.metrics.RecordUpstreamLatency(metrics.ServiceTMDB, time.Since(start))
		return err
	}
	c.metrics.RecordUpstreamRequest(metrics.ServiceTMDB, metrics.OutcomeSuccess)
	c.metrics.RecordUpstreamLatency(metrics.ServiceTMDB, time.Since(start))

	if err := decode(body, out); err != nil {
		return err
	}
	c.cache.SetDefault(key, body)
	return nil
}

// fetch は1回分のHTTP呼び出しを行い、200のレスポンスボディを返す。
func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create TMDB request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("TMDB APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("TMDB APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Path: path}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read TMDB response: %w", err)
	}
	return body, nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse TMDB response: %w", err)
	}
	return nil
}
