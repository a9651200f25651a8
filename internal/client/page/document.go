package page

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/hitoshi/moovies/internal/client/watchlist"
)

const castNameWidth = 24

// Snapshot はDocumentのある時点の画面状態。
type Snapshot struct {
	Title       string
	Overview    string
	Rating      string
	Background  string
	Hero        string
	Cast        []CastCard
	Reviews     []ReviewItem
	ReviewsText string
	SearchInput string

	WatchlistLabel   string
	WatchlistEnabled bool

	RecommendationStatus string
	Recommendations      []string

	WatchlistCards []watchlist.Card
	WatchlistEmpty string
}

// Document はメモリ上のView実装。CLIはこれをWriteTextで出力する。
type Document struct {
	mu    sync.Mutex
	state Snapshot
}

var (
	_ View           = (*Document)(nil)
	_ watchlist.View = (*Document)(nil)
)

// NewDocument は空のDocumentを生成する。
func NewDocument() *Document {
	return &Document{}
}

func (d *Document) update(fn func(s *Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.state)
}

// Snapshot は現在の画面状態のコピーを返す。
func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	s.Cast = append([]CastCard(nil), s.Cast...)
	s.Reviews = append([]ReviewItem(nil), s.Reviews...)
	s.Recommendations = append([]string(nil), s.Recommendations...)
	s.WatchlistCards = append([]watchlist.Card(nil), s.WatchlistCards...)
	return s
}

func (d *Document) ShowHero(imageURL string) {
	d.update(func(s *Snapshot) { s.Hero = imageURL })
}

func (d *Document) SetTitle(text string) {
	d.update(func(s *Snapshot) { s.Title = text })
}

func (d *Document) SetOverview(text string) {
	d.update(func(s *Snapshot) { s.Overview = text })
}

func (d *Document) SetRating(text string) {
	d.update(func(s *Snapshot) { s.Rating = text })
}

// SetBackground は概要欄とヒーローの両方の背景を設定する。
func (d *Document) SetBackground(imageURL string) {
	d.update(func(s *Snapshot) {
		s.Background = imageURL
		s.Hero = imageURL
	})
}

func (d *Document) ShowCast(cards []CastCard) {
	d.update(func(s *Snapshot) { s.Cast = append([]CastCard(nil), cards...) })
}

func (d *Document) ShowReviews(reviews []ReviewItem) {
	d.update(func(s *Snapshot) {
		s.Reviews = append([]ReviewItem(nil), reviews...)
		s.ReviewsText = ""
	})
}

func (d *Document) ShowReviewsText(text string) {
	d.update(func(s *Snapshot) {
		s.Reviews = nil
		s.ReviewsText = text
	})
}

func (d *Document) SetSearchInput(value string) {
	d.update(func(s *Snapshot) { s.SearchInput = value })
}

func (d *Document) SetWatchlistButton(label string, enabled bool) {
	d.update(func(s *Snapshot) {
		s.WatchlistLabel = label
		s.WatchlistEnabled = enabled
	})
}

func (d *Document) SetRecommendationStatus(text string) {
	d.update(func(s *Snapshot) { s.RecommendationStatus = text })
}

func (d *Document) ShowRecommendations(titles []string) {
	d.update(func(s *Snapshot) { s.Recommendations = append([]string(nil), titles...) })
}

func (d *Document) ShowWatchlistEmpty(message string) {
	d.update(func(s *Snapshot) {
		s.WatchlistCards = nil
		s.WatchlistEmpty = message
	})
}

func (d *Document) ShowWatchlist(cards []watchlist.Card) {
	d.update(func(s *Snapshot) {
		s.WatchlistCards = append([]watchlist.Card(nil), cards...)
		s.WatchlistEmpty = ""
	})
}

// WriteText は画面状態をテキストでwに書き出す。
// 表示内容の無いセクションは出力しない。
func WriteText(w io.Writer, doc *Document) error {
	s := doc.Snapshot()

	r := lipgloss.NewRenderer(w)
	heading := r.NewStyle().Bold(true)
	muted := r.NewStyle().Faint(true)

	var b strings.Builder
	section := func(name string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(heading.Render(name))
		b.WriteString("\n")
	}

	if s.Title != "" {
		b.WriteString(heading.Render(s.Title))
		b.WriteString("\n")
		if s.Rating != "" {
			fmt.Fprintf(&b, "Rating: %s\n", s.Rating)
		}
		if s.Overview != "" {
			b.WriteString(s.Overview)
			b.WriteString("\n")
		}
		if s.Background != "" {
			b.WriteString(muted.Render("Backdrop: " + s.Background))
			b.WriteString("\n")
		}
		if s.WatchlistEnabled {
			b.WriteString(muted.Render("[" + s.WatchlistLabel + "]"))
			b.WriteString("\n")
		}

		if len(s.Cast) > 0 {
			section("Cast")
			for _, c := range s.Cast {
				name := runewidth.FillRight(runewidth.Truncate(c.Name, castNameWidth, "…"), castNameWidth)
				image := c.ImageURL
				if image == "" {
					image = c.Text
				}
				fmt.Fprintf(&b, "  %s %s\n", name, image)
			}
		}

		if len(s.Reviews) > 0 || s.ReviewsText != "" {
			section("Reviews")
			if len(s.Reviews) == 0 {
				fmt.Fprintf(&b, "  %s\n", s.ReviewsText)
			}
			for _, rv := range s.Reviews {
				fmt.Fprintf(&b, "  %s\n", heading.Render(rv.Author))
				for _, line := range strings.Split(rv.Content, "\n") {
					fmt.Fprintf(&b, "    %s\n", line)
				}
			}
		}
	} else if s.Hero != "" {
		b.WriteString(muted.Render("Backdrop: " + s.Hero))
		b.WriteString("\n")
	}

	if s.RecommendationStatus != "" || len(s.Recommendations) > 0 {
		section("Recommendations")
		if s.RecommendationStatus != "" {
			fmt.Fprintf(&b, "  %s\n", s.RecommendationStatus)
		}
		for i, title := range s.Recommendations {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, title)
		}
	}

	if s.WatchlistEmpty != "" || len(s.WatchlistCards) > 0 {
		section("Watchlist")
		if s.WatchlistEmpty != "" {
			fmt.Fprintf(&b, "  %s\n", s.WatchlistEmpty)
		}
		for _, c := range s.WatchlistCards {
			title := c.Title
			if c.Year != "" {
				title = fmt.Sprintf("%s (%s)", c.Title, c.Year)
			}
			poster := c.PosterURL
			if poster == "" {
				poster = c.PosterText
			}
			fmt.Fprintf(&b, "  #%d %s\n", c.ID, heading.Render(title))
			fmt.Fprintf(&b, "    %s\n", c.Overview)
			fmt.Fprintf(&b, "    %s\n", muted.Render(poster))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
