package watchlist

import (
	"strconv"
	"time"
)

const (
	posterBaseURL = "https://image.tmdb.org/t/p/w342"

	// EmptyMessage はウォッチリストが空のときの表示。
	EmptyMessage = "No movies saved yet."
)

// Card はウォッチリストの1件の表示内容。
type Card struct {
	ID         int
	PosterURL  string // 画像が無い場合は空
	PosterText string // 画像が無い場合の代替表示
	Title      string
	Year       string
	Overview   string
}

// View はウォッチリストを表示する画面。
type View interface {
	ShowWatchlistEmpty(message string)
	ShowWatchlist(cards []Card)
}

// Render は保存されているウォッチリストをviewに表示する。
func (s *Store) Render(view View) {
	list := s.List()
	if len(list) == 0 {
		view.ShowWatchlistEmpty(EmptyMessage)
		return
	}

	cards := make([]Card, 0, len(list))
	for _, m := range list {
		card := Card{
			ID:       m.ID,
			Title:    orDefault(m.Title, "Untitled"),
			Overview: orDefault(m.Overview, "No description"),
			Year:     releaseYear(m.ReleaseDate),
		}
		switch {
		case m.PosterPath != "":
			card.PosterURL = posterBaseURL + m.PosterPath
		case m.BackdropPath != "":
			card.PosterURL = posterBaseURL + m.BackdropPath
		default:
			card.PosterText = "No art"
		}
		cards = append(cards, card)
	}
	view.ShowWatchlist(cards)
}

// RemoveAndRender はidの映画を削除して表示し直す。
func (s *Store) RemoveAndRender(id int, view View) error {
	if err := s.Remove(id); err != nil {
		return err
	}
	s.Render(view)
	return nil
}

func releaseYear(date string) string {
	if date == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return strconv.Itoa(t.Year())
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
