package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hitoshi/moovies/internal/client/api"
	"github.com/hitoshi/moovies/internal/client/watchlist"
)

const (
	imageBaseURL      = "https://image.tmdb.org/t/p"
	backgroundBaseURL = imageBaseURL + "/w780"
	castBaseURL       = imageBaseURL + "/w185"

	maxCast          = 8
	maxReviews       = 3
	maxReviewRunes   = 400
	truncationMarker = "…"
)

var (
	// ErrNoMovie は表示中の映画が無い状態でウォッチリスト操作をした場合のエラー。
	ErrNoMovie = errors.New("no movie is displayed")
	// ErrNoSuchPill は存在しないおすすめを選んだ場合のエラー。
	ErrNoSuchPill = errors.New("no such recommendation")
)

// MovieSource は映画情報とおすすめを取得する。api.Clientが満たす。
type MovieSource interface {
	Movie(ctx context.Context, query string) (*api.MovieDetails, error)
	Recommend(ctx context.Context, description string) ([]string, error)
}

// Stopper はヒーロー背景の切り替えを止める。hero.Shufflerが満たす。
type Stopper interface {
	Stop()
}

// Controller は1回のページ表示に対応する画面の状態を持つ。
type Controller struct {
	view      View
	movies    MovieSource
	watchlist *watchlist.Store
	hero      Stopper
	logger    *slog.Logger

	mu           sync.Mutex
	searchSeq    uint64
	recommendSeq uint64
	searchInput  string
	current      *api.Movie
	pills        []string
}

// NewController はControllerを生成する。heroはnilでもよい。
func NewController(view View, movies MovieSource, wl *watchlist.Store, heroStopper Stopper, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		view:      view,
		movies:    movies,
		watchlist: wl,
		hero:      heroStopper,
		logger:    logger,
	}
}

// SetSearchInput は検索欄の値を設定する。
func (c *Controller) SetSearchInput(value string) {
	c.mu.Lock()
	c.searchInput = value
	c.mu.Unlock()
	c.view.SetSearchInput(value)
}

// Search は検索欄の値で検索する。
func (c *Controller) Search(ctx context.Context) error {
	c.mu.Lock()
	query := c.searchInput
	c.mu.Unlock()
	return c.SearchAndFill(ctx, query)
}

// SearchAndFill は映画を検索して画面に表示する。
//
// 後から始まった検索がある場合、古い検索の結果は破棄される。
// 映画が見つからなかった場合とエラー時は画面にメッセージを表示する。
// 戻り値は取得に失敗した場合のエラーで、見つからなかった場合はnil。
func (c *Controller) SearchAndFill(ctx context.Context, query string) error {
	if c.hero != nil {
		c.hero.Stop()
	}
	query = strings.TrimSpace(query)

	c.mu.Lock()
	c.searchSeq++
	seq := c.searchSeq
	c.current = nil
	c.clearLocked()
	if query == "" {
		c.view.SetTitle(EmptyQueryMessage)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	details, err := c.movies.Movie(ctx, query)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.searchSeq {
		c.logger.Debug("古い検索結果を破棄", slog.String("query", query))
		return nil
	}

	if err != nil {
		if isNotFound(err) {
			c.view.SetTitle(noResultsTitle(query))
			return nil
		}
		c.logger.Error("映画の取得に失敗",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		c.view.SetTitle(FetchErrorMessage)
		return err
	}
	if details == nil || details.Movie == nil {
		c.view.SetTitle(noResultsTitle(query))
		return nil
	}

	c.renderLocked(details)
	return nil
}

func (c *Controller) clearLocked() {
	c.view.SetTitle(AwaitingTitle)
	c.view.SetOverview(Placeholder)
	c.view.SetRating(Placeholder)
	c.view.ShowReviewsText(Placeholder)
	c.view.ShowCast(nil)
	c.view.SetBackground("")
	c.view.SetWatchlistButton(AddToWatchlist, false)
}

func (c *Controller) renderLocked(details *api.MovieDetails) {
	movie := *details.Movie
	c.current = &movie

	title := movie.Title
	if year := releaseYear(movie.ReleaseDate); year != "" {
		title = fmt.Sprintf("%s (%s)", movie.Title, year)
	}
	c.view.SetTitle(textOr(title, Placeholder))
	c.view.SetOverview(textOr(movie.Overview, Placeholder))

	rating := Placeholder
	if movie.VoteAverage != 0 {
		rating = fmt.Sprintf("%.1f / 10 (%d votes)", movie.VoteAverage, movie.VoteCount)
	}
	c.view.SetRating(rating)

	background := ""
	if path := firstNonEmpty(movie.BackdropPath, movie.PosterPath); path != "" {
		background = backgroundBaseURL + path
	}
	c.view.SetBackground(background)

	c.view.ShowCast(castCards(details.Credits))

	if reviews := reviewItems(details.Reviews); len(reviews) > 0 {
		c.view.ShowReviews(reviews)
	} else {
		c.view.ShowReviewsText(NoReviewsMessage)
	}

	c.updateWatchlistButtonLocked()
}

func (c *Controller) updateWatchlistButtonLocked() {
	if c.current == nil || c.watchlist == nil {
		c.view.SetWatchlistButton(AddToWatchlist, false)
		return
	}
	label := AddToWatchlist
	if c.watchlist.IsSaved(c.current.ID) {
		label = RemoveFromWatchlist
	}
	c.view.SetWatchlistButton(label, true)
}

// GetRecommendations は説明文からおすすめ映画を取得し、選択肢として表示する。
func (c *Controller) GetRecommendations(ctx context.Context, description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		c.mu.Lock()
		// 実行中のリクエストの結果でこの案内を上書きさせない
		c.recommendSeq++
		c.view.SetRecommendationStatus(EmptyDescription)
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.recommendSeq++
	seq := c.recommendSeq
	c.pills = nil
	c.view.SetRecommendationStatus(FetchingRecommendation)
	c.view.ShowRecommendations(nil)
	c.mu.Unlock()

	titles, err := c.movies.Recommend(ctx, description)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.recommendSeq {
		return nil
	}
	if err != nil {
		c.logger.Error("おすすめの取得に失敗", slog.String("error", err.Error()))
		c.view.SetRecommendationStatus(RecommendFailed)
		return err
	}
	if len(titles) == 0 {
		c.view.SetRecommendationStatus(NoRecommendations)
		return nil
	}
	c.pills = append([]string(nil), titles...)
	c.view.SetRecommendationStatus("")
	c.view.ShowRecommendations(c.pills)
	return nil
}

// Recommendations は表示中のおすすめを返す。
func (c *Controller) Recommendations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pills...)
}

// ActivatePill はおすすめを選び、そのタイトルで検索する。
func (c *Controller) ActivatePill(ctx context.Context, index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.pills) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSuchPill, index)
	}
	title := c.pills[index]
	c.mu.Unlock()

	c.SetSearchInput(title)
	return c.SearchAndFill(ctx, title)
}

// PillKey はおすすめ上のキー入力を処理する。EnterとSpaceで選択する。
// 選択した場合はtrueを返す。
func (c *Controller) PillKey(ctx context.Context, index int, key string) (bool, error) {
	if key != "Enter" && key != " " {
		return false, nil
	}
	return true, c.ActivatePill(ctx, index)
}

// ToggleCurrent は表示中の映画をウォッチリストに追加または削除する。
func (c *Controller) ToggleCurrent() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.watchlist == nil {
		return false, ErrNoMovie
	}
	saved, err := c.watchlist.Toggle(*c.current)
	if err != nil {
		return false, err
	}
	c.updateWatchlistButtonLocked()
	return saved, nil
}

// Current は表示中の映画を返す。
func (c *Controller) Current() (api.Movie, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return api.Movie{}, false
	}
	return *c.current, true
}

// noResultsTitle はクエリをそのまま二重引用符で囲む。%qのようにエスケープしない。
func noResultsTitle(query string) string {
	return `No results for "` + query + `"`
}

func isNotFound(err error) bool {
	var httpErr *api.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

func castCards(cast []api.CastMember) []CastCard {
	if len(cast) == 0 {
		return []CastCard{{Text: CastPlaceholder}}
	}
	if len(cast) > maxCast {
		cast = cast[:maxCast]
	}
	cards := make([]CastCard, 0, len(cast))
	for _, p := range cast {
		card := CastCard{Name: p.Name}
		if p.ProfilePath != "" {
			card.ImageURL = castBaseURL + p.ProfilePath
		} else {
			card.Text = CastPlaceholder
		}
		cards = append(cards, card)
	}
	return cards
}

func reviewItems(reviews []api.Review) []ReviewItem {
	if len(reviews) > maxReviews {
		reviews = reviews[:maxReviews]
	}
	items := make([]ReviewItem, 0, len(reviews))
	for _, r := range reviews {
		items = append(items, ReviewItem{
			Author:  firstNonEmpty(r.Author, AnonymousAuthor),
			Content: truncate(strings.TrimSpace(r.Content), maxReviewRunes),
		})
	}
	return items
}

// truncate はn文字を超える部分を切り捨てて省略記号を付ける。
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + truncationMarker
}

func releaseYear(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}

func textOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
