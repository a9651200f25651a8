package hero

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/moovies/internal/client/api"
)

type fakeSource struct {
	movies []api.RandomMovie
	err    error
}

func (f *fakeSource) RandomMovies(ctx context.Context) ([]api.RandomMovie, error) {
	return f.movies, f.err
}

// fakeView はShowHeroの呼び出しを記録する。tickerのゴルーチンから呼ばれる。
type fakeView struct {
	mu    sync.Mutex
	shown []string
	ch    chan string
}

func newFakeView() *fakeView {
	return &fakeView{ch: make(chan string, 16)}
}

func (v *fakeView) ShowHero(imageURL string) {
	v.mu.Lock()
	v.shown = append(v.shown, imageURL)
	v.mu.Unlock()
	v.ch <- imageURL
}

func (v *fakeView) Shown() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.shown...)
}

func (v *fakeView) next(t *testing.T) string {
	t.Helper()
	select {
	case u := <-v.ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("ShowHero が呼ばれなかった")
		return ""
	}
}

// manualTicker はテストから手動で時刻を進めるticker。
type manualTicker struct {
	ch       chan time.Time
	created  int
	interval time.Duration
	stopped  chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) factory(d time.Duration) (<-chan time.Time, func()) {
	m.created++
	m.interval = d
	return m.ch, func() { close(m.stopped) }
}

func newTestShuffler(source Source, view View, ticker *manualTicker) *Shuffler {
	s := NewShuffler(source, view, 0, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	s.newTicker = ticker.factory
	return s
}

func TestShuffler_EmptyPool(t *testing.T) {
	view := newFakeView()
	ticker := newManualTicker()
	s := newTestShuffler(&fakeSource{movies: []api.RandomMovie{{Title: "no art"}}}, view, ticker)

	s.Start(context.Background())

	if len(view.Shown()) != 0 {
		t.Errorf("候補が0件なら表示しないこと: %v", view.Shown())
	}
	if ticker.created != 0 {
		t.Error("候補が0件ならタイマーを開始しないこと")
	}
}

func TestShuffler_SingleImageIsStatic(t *testing.T) {
	view := newFakeView()
	ticker := newManualTicker()
	s := newTestShuffler(&fakeSource{movies: []api.RandomMovie{{PosterPath: "/only.jpg"}}}, view, ticker)

	s.Start(context.Background())

	if diff := cmp.Diff([]string{ImageBaseURL + "/only.jpg"}, view.Shown()); diff != "" {
		t.Errorf("shown mismatch (-want +got):\n%s", diff)
	}
	if ticker.created != 0 {
		t.Error("候補が1件ならタイマーを開始しないこと")
	}
}

func TestShuffler_RotatesAndWraps(t *testing.T) {
	view := newFakeView()
	ticker := newManualTicker()
	s := newTestShuffler(&fakeSource{movies: []api.RandomMovie{
		{BackdropPath: "/a.jpg", PosterPath: "/a-poster.jpg"},
		{PosterPath: "/b.jpg"},
		{Title: "skipped"},
		{BackdropPath: "/c.jpg"},
	}}, view, ticker)

	s.Start(context.Background())
	defer s.Stop()

	if got := view.next(t); got != ImageBaseURL+"/a.jpg" {
		t.Fatalf("最初の画像 = %q", got)
	}
	if ticker.interval != 6*time.Second {
		t.Errorf("間隔 = %v, want 6s", ticker.interval)
	}

	want := []string{"/b.jpg", "/c.jpg", "/a.jpg", "/b.jpg"}
	for _, path := range want {
		ticker.ch <- time.Now()
		if got := view.next(t); got != ImageBaseURL+path {
			t.Errorf("次の画像 = %q, want %q", got, ImageBaseURL+path)
		}
	}
}

func TestShuffler_StopIsPermanent(t *testing.T) {
	view := newFakeView()
	ticker := newManualTicker()
	s := newTestShuffler(&fakeSource{movies: []api.RandomMovie{
		{BackdropPath: "/a.jpg"},
		{BackdropPath: "/b.jpg"},
	}}, view, ticker)

	s.Start(context.Background())
	view.next(t)

	s.Stop()

	select {
	case <-ticker.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop でタイマーを止めること")
	}

	// 再度Startしても再開しない
	s.Start(context.Background())
	s.Stop()
	if len(view.Shown()) != 1 {
		t.Errorf("停止後は表示を変えないこと: %v", view.Shown())
	}
	if ticker.created != 1 {
		t.Errorf("ticker created = %d, want 1", ticker.created)
	}
}

func TestShuffler_StopBeforeStart(t *testing.T) {
	view := newFakeView()
	ticker := newManualTicker()
	s := newTestShuffler(&fakeSource{movies: []api.RandomMovie{{BackdropPath: "/a.jpg"}, {BackdropPath: "/b.jpg"}}}, view, ticker)

	s.Stop()
	s.Start(context.Background())

	if len(view.Shown()) != 0 {
		t.Errorf("検索後に開始しても表示しないこと: %v", view.Shown())
	}
}

func TestShuffler_ContextCancelStopsRotation(t *testing.T) {
	view := newFakeView()
	ticker := newManualTicker()
	s := newTestShuffler(&fakeSource{movies: []api.RandomMovie{{BackdropPath: "/a.jpg"}, {BackdropPath: "/b.jpg"}}}, view, ticker)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	view.next(t)
	cancel()

	select {
	case <-ticker.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("ctx のキャンセルでタイマーを止めること")
	}
}

func TestShuffler_FetchErrorLeavesHeroEmpty(t *testing.T) {
	view := newFakeView()
	var logs bytes.Buffer
	s := NewShuffler(&fakeSource{err: errors.New("502 Bad Gateway")}, view, time.Second, slog.New(slog.NewJSONHandler(&logs, nil)))

	s.Start(context.Background())

	if len(view.Shown()) != 0 {
		t.Errorf("取得失敗時は表示しないこと: %v", view.Shown())
	}
	if !strings.Contains(logs.String(), "502 Bad Gateway") {
		t.Errorf("取得失敗をログに残すこと: %s", logs.String())
	}
}
