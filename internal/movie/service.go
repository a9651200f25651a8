// Package movie は映画検索とヒーロー背景用ランダム映画のドメインロジックを提供する。
package movie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/moovies/internal/model"
	"github.com/hitoshi/moovies/internal/tmdb"
)

// defaultSampleSize はランダム映画の最大件数。
const defaultSampleSize = 12

// MetadataClient は映画メタデータAPIのインターフェース。
// テスタビリティのためtmdb.Clientを抽象化する。
type MetadataClient interface {
	SearchMovie(ctx context.Context, query string) ([]model.Movie, error)
	MovieCredits(ctx context.Context, movieID int) ([]model.CastMember, error)
	MovieReviews(ctx context.Context, movieID int) ([]model.Review, error)
	TrendingMovies(ctx context.Context, window string) ([]tmdb.TrendingMovie, error)
}

// Sanitizer はレビュー本文からマークアップを除去するインターフェース。
type Sanitizer interface {
	PlainText(raw string) string
}

// Service は映画検索のサービス層。
type Service struct {
	client     MetadataClient
	sanitizer  Sanitizer
	logger     *slog.Logger
	sampleSize int

	// テスト用に差し替え可能
	shuffle func(n int, swap func(i, j int))
}

// NewService はServiceの新しいインスタンスを生成する。
// sampleSizeが0以下の場合は12件とする。
func NewService(client MetadataClient, sanitizer Sanitizer, logger *slog.Logger, sampleSize int) *Service {
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	return &Service{
		client:     client,
		sanitizer:  sanitizer,
		logger:     logger,
		sampleSize: sampleSize,
		shuffle:    rand.Shuffle,
	}
}

// Lookup はフリーテキストで映画を検索し、最上位の1件と出演者・レビューを返す。
// フロー: クエリ検証 → 検索 → 先頭の結果を採用 → クレジット・レビューを並行取得
func (s *Service) Lookup(ctx context.Context, query string) (*model.MovieDetails, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewQueryRequiredError()
	}

	results, err := s.client.SearchMovie(ctx, query)
	if err != nil {
		return nil, s.upstreamError("TMDB search failed", err)
	}
	if len(results) == 0 {
		return nil, model.NewMovieNotFoundError(query)
	}

	movie := results[0]
	if movie.ID == 0 {
		return nil, model.NewUpstreamFailedError("TMDB result missing movie id.")
	}

	var (
		cast    []model.CastMember
		reviews []model.Review
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cast, err = s.client.MovieCredits(gctx, movie.ID)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = s.client.MovieReviews(gctx, movie.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.upstreamError("TMDB detail fetch failed", err)
	}

	for i := range reviews {
		reviews[i].Author = s.sanitizer.PlainText(reviews[i].Author)
		reviews[i].Content = s.sanitizer.PlainText(reviews[i].Content)
	}

	if cast == nil {
		cast = []model.CastMember{}
	}
	if reviews == nil {
		reviews = []model.Review{}
	}

	s.logger.Info("映画を検索しました",
		slog.String("query", query),
		slog.Int("movie_id", movie.ID),
		slog.Int("cast_count", len(cast)),
		slog.Int("review_count", len(reviews)),
	)

	return &model.MovieDetails{
		Movie:   &movie,
		Credits: cast,
		Reviews: reviews,
	}, nil
}

// RandomMovies は今週のトレンドから重複なしで最大sampleSize件を無作為に選び、
// 背景画像を持つものだけを返す。トレンドが空の場合は空スライスを返す。
func (s *Service) RandomMovies(ctx context.Context) ([]model.RandomMovie, error) {
	trending, err := s.client.TrendingMovies(ctx, tmdb.WindowWeek)
	if err != nil {
		return nil, s.upstreamError("TMDB random fetch failed", err)
	}

	picks := make([]tmdb.TrendingMovie, len(trending))
	copy(picks, trending)
	s.shuffle(len(picks), func(i, j int) { picks[i], picks[j] = picks[j], picks[i] })
	picks = picks[:min(s.sampleSize, len(picks))]

	out := make([]model.RandomMovie, 0, len(picks))
	for _, m := range picks {
		if m.BackdropPath == "" && m.PosterPath == "" {
			continue
		}
		title := m.Title
		if title == "" {
			title = m.Name
		}
		out = append(out, model.RandomMovie{
			Title:        title,
			BackdropPath: m.BackdropPath,
			PosterPath:   m.PosterPath,
		})
	}
	return out, nil
}

// upstreamError はTMDB呼び出しエラーをAPIErrorに変換する。
// トークン未設定は設定不備として扱う。
func (s *Service) upstreamError(prefix string, err error) error {
	if errors.Is(err, tmdb.ErrMissingToken) {
		return model.NewUpstreamMisconfiguredError(err.Error())
	}
	s.logger.Error("TMDB呼び出しに失敗しました",
		slog.String("operation", prefix),
		slog.String("error", err.Error()),
	)
	return model.NewUpstreamFailedError(fmt.Sprintf("%s: %v", prefix, err))
}
