// Package page は映画検索画面のコントローラーと、その画面状態を提供する。
package page

import (
	"github.com/hitoshi/moovies/internal/client/hero"
	"github.com/hitoshi/moovies/internal/client/watchlist"
)

// 画面に表示する固定文言
const (
	Placeholder            = "—"
	AwaitingTitle          = "Awaiting Selection"
	EmptyQueryMessage      = "Type a movie name above."
	FetchErrorMessage      = "Error fetching data."
	NoReviewsMessage       = "No user reviews found."
	CastPlaceholder        = "pic."
	AnonymousAuthor        = "Anonymous"
	EmptyDescription       = "Please describe a movie first."
	FetchingRecommendation = "Fetching recommendations…"
	NoRecommendations      = "No recommendations found."
	RecommendFailed        = "Could not fetch recommendations. Please try again."
	AddToWatchlist         = "Add to watchlist"
	RemoveFromWatchlist    = "Remove from watchlist"
)

// CastCard は出演者カード。画像が無い場合はImageURLが空でTextに代替表示が入る。
type CastCard struct {
	Name     string
	ImageURL string
	Text     string
}

// ReviewItem は表示用に切り詰めたレビュー。
type ReviewItem struct {
	Author  string
	Content string
}

// View は検索画面の描画先。
type View interface {
	hero.View
	watchlist.View

	SetTitle(text string)
	SetOverview(text string)
	SetRating(text string)
	// SetBackground は背景画像を設定する。空文字は背景なし。
	SetBackground(imageURL string)
	ShowCast(cards []CastCard)
	ShowReviews(reviews []ReviewItem)
	ShowReviewsText(text string)
	SetSearchInput(value string)
	SetWatchlistButton(label string, enabled bool)
	SetRecommendationStatus(text string)
	ShowRecommendations(titles []string)
}
