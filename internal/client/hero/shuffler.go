// Package hero は検索前に表示するヒーロー背景の切り替えを提供する。
package hero

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/moovies/internal/client/api"
)

const (
	// DefaultInterval は背景を切り替える間隔。
	DefaultInterval = 6000 * time.Millisecond

	// ImageBaseURL は背景画像のベースURL。
	ImageBaseURL = "https://image.tmdb.org/t/p/w780"
)

// Source はヒーロー背景の候補を取得する。api.Clientが満たす。
type Source interface {
	RandomMovies(ctx context.Context) ([]api.RandomMovie, error)
}

// View はヒーロー背景を表示する画面。
type View interface {
	ShowHero(imageURL string)
}

// Shuffler は候補画像を一定間隔で切り替える。
// 一度Stopすると、同じShufflerで再開することはない。
type Shuffler struct {
	source   Source
	view     View
	interval time.Duration
	logger   *slog.Logger

	// newTicker はテストで差し替える
	newTicker func(d time.Duration) (<-chan time.Time, func())

	mu      sync.Mutex
	pool    []string
	index   int
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewShuffler はShufflerを生成する。intervalが0以下の場合はDefaultIntervalを使う。
func NewShuffler(source Source, view View, interval time.Duration, logger *slog.Logger) *Shuffler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Shuffler{
		source:   source,
		view:     view,
		interval: interval,
		logger:   logger,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		stopCh: make(chan struct{}),
	}
}

// Start は候補を取得して最初の画像を表示する。
//
// 候補が0件なら何も表示しない。1件ならその画像を表示し、タイマーは開始しない。
// 2件以上なら先頭から順に、Stopかctxのキャンセルまで一定間隔で切り替える。
// 取得に失敗した場合はログに残し、背景は空のままにする。
func (s *Shuffler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	movies, err := s.source.RandomMovies(ctx)
	if err != nil {
		s.logger.Error("ヒーロー背景の取得に失敗", slog.String("error", err.Error()))
		return
	}

	pool := make([]string, 0, len(movies))
	for _, m := range movies {
		path := m.BackdropPath
		if path == "" {
			path = m.PosterPath
		}
		if path != "" {
			pool = append(pool, ImageBaseURL+path)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 取得中に検索が始まった場合は表示しない
	if s.stopped || len(pool) == 0 {
		return
	}
	s.pool = pool
	s.index = 0
	s.view.ShowHero(pool[0])

	if len(pool) < 2 {
		return
	}

	ticks, stopTicker := s.newTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stopTicker()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticks:
				s.advance()
			}
		}
	}()
}

func (s *Shuffler) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.index = (s.index + 1) % len(s.pool)
	s.view.ShowHero(s.pool[s.index])
}

// Stop は切り替えを止める。以後このShufflerは再開しない。
func (s *Shuffler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Pool は表示候補の画像URLを返す。
func (s *Shuffler) Pool() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pool...)
}
