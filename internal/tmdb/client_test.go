package tmdb

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/moovies/internal/metrics"
	"github.com/hitoshi/moovies/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// mockMetrics は記録された呼び出しを保持するMetricsCollectorモック。
type mockMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	outcomes []string
	hits     int
	misses   int
}

func (m *mockMetrics) RecordUpstreamRequest(_ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockMetrics) RecordCacheLookup(_ string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func newTestClient(t *testing.T, server *httptest.Server, mc metrics.MetricsCollector) *Client {
	t.Helper()
	var buf bytes.Buffer
	return NewClient(server.Client(), newTestLogger(&buf), Config{
		BaseURL:   server.URL,
		ReadToken: "test-token",
		CacheTTL:  time.Minute,
	}, mc)
}

func TestClient_SearchMovie_SendsHeadersAndDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			t.Errorf("path = %s, want /search/movie", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "Inception" {
			t.Errorf("query = %q, want Inception", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"page":1,"results":[{"id":27205,"title":"Inception","overview":"Dreams.","poster_path":"/p.jpg","backdrop_path":"/b.jpg","release_date":"2010-07-15","vote_average":8.4,"vote_count":35000,"genre_ids":[28]}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	got, err := c.SearchMovie(context.Background(), "Inception")
	if err != nil {
		t.Fatalf("SearchMovie がエラーを返した: %v", err)
	}

	want := []model.Movie{{
		ID:           27205,
		Title:        "Inception",
		Overview:     "Dreams.",
		PosterPath:   "/p.jpg",
		BackdropPath: "/b.jpg",
		ReleaseDate:  "2010-07-15",
		VoteAverage:  8.4,
		VoteCount:    35000,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SearchMovie mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_SearchMovie_CachesSuccessfulResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"results":[{"id":1,"title":"Alien"}]}`))
	}))
	defer server.Close()

	mc := &mockMetrics{}
	c := newTestClient(t, server, mc)

	for i := 0; i < 3; i++ {
		movies, err := c.SearchMovie(context.Background(), "Alien")
		if err != nil {
			t.Fatalf("SearchMovie #%d がエラーを返した: %v", i, err)
		}
		if len(movies) != 1 || movies[0].Title != "Alien" {
			t.Fatalf("SearchMovie #%d = %+v", i, movies)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("上流呼び出し回数 = %d, want 1", calls.Load())
	}
	if mc.hits != 2 || mc.misses != 1 {
		t.Errorf("cache hits/misses = %d/%d, want 2/1", mc.hits, mc.misses)
	}

	// 別クエリはキャッシュされていない
	if _, err := c.SearchMovie(context.Background(), "Aliens"); err != nil {
		t.Fatalf("SearchMovie がエラーを返した: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("上流呼び出し回数 = %d, want 2", calls.Load())
	}
}

func TestClient_NonOKStatus_ReturnsStatusErrorAndIsNotCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"status_message":"not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	mc := &mockMetrics{}
	c := newTestClient(t, server, mc)

	for i := 0; i < 2; i++ {
		_, err := c.MovieCredits(context.Background(), 42)
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("error = %v, want *StatusError", err)
		}
		if se.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want 404", se.StatusCode)
		}
		if se.Path != "/movie/42/credits" {
			t.Errorf("Path = %q", se.Path)
		}
	}

	if calls.Load() != 2 {
		t.Errorf("エラーレスポンスはキャッシュしないこと: calls = %d, want 2", calls.Load())
	}
	if len(mc.outcomes) != 2 || mc.outcomes[0] != metrics.OutcomeError {
		t.Errorf("outcomes = %v", mc.outcomes)
	}
}

func TestClient_MissingToken_DoesNotCallUpstream(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), Config{BaseURL: server.URL}, nil)

	_, err := c.SearchMovie(context.Background(), "Heat")
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("error = %v, want ErrMissingToken", err)
	}
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
}

func TestClient_CreditsAndReviews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/movie/603/credits":
			w.Write([]byte(`{"id":603,"cast":[{"id":6384,"name":"Keanu Reeves","character":"Neo","profile_path":"/k.jpg","order":0}],"crew":[]}`))
		case "/movie/603/reviews":
			w.Write([]byte(`{"id":603,"page":1,"results":[{"id":"r1","author":"critic","content":"Great.","url":"https://example.com/r1"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	cast, err := c.MovieCredits(context.Background(), 603)
	if err != nil {
		t.Fatalf("MovieCredits がエラーを返した: %v", err)
	}
	wantCast := []model.CastMember{{ID: 6384, Name: "Keanu Reeves", Character: "Neo", ProfilePath: "/k.jpg"}}
	if diff := cmp.Diff(wantCast, cast); diff != "" {
		t.Errorf("MovieCredits mismatch (-want +got):\n%s", diff)
	}

	reviews, err := c.MovieReviews(context.Background(), 603)
	if err != nil {
		t.Fatalf("MovieReviews がエラーを返した: %v", err)
	}
	wantReviews := []model.Review{{ID: "r1", Author: "critic", Content: "Great.", URL: "https://example.com/r1"}}
	if diff := cmp.Diff(wantReviews, reviews); diff != "" {
		t.Errorf("MovieReviews mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_TrendingMovies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trending/movie/week" {
			t.Errorf("path = %s, want /trending/movie/week", r.URL.Path)
		}
		w.Write([]byte(`{"results":[{"id":1,"title":"Dune","backdrop_path":"/d.jpg"},{"id":2,"name":"Show","poster_path":"/s.jpg"}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	got, err := c.TrendingMovies(context.Background(), WindowWeek)
	if err != nil {
		t.Fatalf("TrendingMovies がエラーを返した: %v", err)
	}
	want := []TrendingMovie{
		{ID: 1, Title: "Dune", BackdropPath: "/d.jpg"},
		{ID: 2, Name: "Show", PosterPath: "/s.jpg"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TrendingMovies mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.TrendingMovies(context.Background(), "month"); err == nil {
		t.Error("未対応のwindowはエラーになること")
	}
}

func TestClient_InvalidJSON_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[`))
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	if _, err := c.SearchMovie(context.Background(), "x"); err == nil {
		t.Error("不正なJSONはエラーになること")
	}
}

func TestClient_BreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	mc := &mockMetrics{}
	c := newTestClient(t, server, mc)

	for i := 0; i < 5; i++ {
		if _, err := c.SearchMovie(context.Background(), "q"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := c.SearchMovie(context.Background(), "q")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("error = %v, want ErrOpenState", err)
	}
	if calls.Load() != 5 {
		t.Errorf("ブレーカー開放後は上流を呼ばないこと: calls = %d, want 5", calls.Load())
	}
	if last := mc.outcomes[len(mc.outcomes)-1]; last != metrics.OutcomeCircuitOpen {
		t.Errorf("last outcome = %q, want %q", last, metrics.OutcomeCircuitOpen)
	}
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	for i := 0; i < 8; i++ {
		_, err := c.MovieReviews(context.Background(), 1)
		if errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("call %d: 4xxでブレーカーが開いてはならない", i)
		}
	}
	if calls.Load() != 8 {
		t.Errorf("calls = %d, want 8", calls.Load())
	}
}

func TestClient_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.SearchMovie(ctx, "q"); err == nil {
		t.Error("キャンセル済みコンテキストはエラーになること")
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{StatusCode: 401, Path: "/search/movie"}
	if got := err.Error(); got != "401 Unauthorized for path /search/movie" {
		t.Errorf("Error() = %q", got)
	}
}
