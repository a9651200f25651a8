package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/moovies/internal/client/api"
	"github.com/hitoshi/moovies/internal/client/hero"
	"github.com/hitoshi/moovies/internal/client/page"
	"github.com/hitoshi/moovies/internal/client/session"
	"github.com/hitoshi/moovies/internal/client/storage"
	"github.com/hitoshi/moovies/internal/client/watchlist"
	"github.com/hitoshi/moovies/internal/config"
	"github.com/hitoshi/moovies/internal/logger"
)

// clientEnv はクライアント系サブコマンドが共有する依存関係。
type clientEnv struct {
	cfg    *config.ClientConfig
	out    io.Writer
	logger *slog.Logger
	store  *storage.BadgerStorage
	api    *api.Client
	mirror *session.Mirror
}

// redirectPrinter はブラウザの画面遷移の代わりに遷移先を出力する。
type redirectPrinter struct {
	w      io.Writer
	logger *slog.Logger
}

func (p redirectPrinter) Redirect(path string) {
	p.logger.Info("画面遷移", slog.String("path", path))
	fmt.Fprintf(p.w, "redirect: %s\n", path)
}

// openClient は設定を読み込み、ストレージとAPIクライアントを準備する。
func openClient(out, errw io.Writer) (*clientEnv, error) {
	log := logger.Setup(errw, slog.String("component", "cli"))

	cfg, err := config.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}

	store, err := storage.OpenBadger(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	nav := redirectPrinter{w: out, logger: log}
	client, err := api.New(cfg.APIURL, store, nav, api.WithLogger(log))
	if err != nil {
		store.Close()
		return nil, err
	}

	provider := session.NewFirebaseProvider(&http.Client{}, session.FirebaseConfig{
		APIKey: cfg.FirebaseAPIKey,
		Store:  store,
	})
	mirror, err := session.NewMirror(store, nav, provider, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	mirror.Start()

	return &clientEnv{
		cfg:    cfg,
		out:    out,
		logger: log,
		store:  store,
		api:    client,
		mirror: mirror,
	}, nil
}

func (e *clientEnv) Close() error {
	e.mirror.Stop()
	return e.store.Close()
}

func (e *clientEnv) controller(doc *page.Document, heroStopper page.Stopper) *page.Controller {
	return page.NewController(doc, e.api, watchlist.NewStore(e.store, e.logger), heroStopper, e.logger)
}

// runSearch は映画を検索して表示する。saveの場合は表示した映画をウォッチリストでトグルする。
func runSearch(ctx context.Context, env *clientEnv, query string, save bool) error {
	doc := page.NewDocument()
	c := env.controller(doc, nil)

	c.SetSearchInput(query)
	searchErr := c.Search(ctx)

	if save {
		if _, err := c.ToggleCurrent(); err != nil && !errors.Is(err, page.ErrNoMovie) {
			return fmt.Errorf("failed to update watchlist: %w", err)
		}
	}

	if err := page.WriteText(env.out, doc); err != nil {
		return err
	}
	return searchErr
}

// runRecommend はおすすめを取得して表示する。pickが1以上の場合はその番号の映画を検索する。
func runRecommend(ctx context.Context, env *clientEnv, description string, pick int) error {
	doc := page.NewDocument()
	c := env.controller(doc, nil)

	err := c.GetRecommendations(ctx, description)
	if err == nil && pick > 0 {
		err = c.ActivatePill(ctx, pick-1)
	}

	if werr := page.WriteText(env.out, doc); werr != nil {
		return werr
	}
	return err
}

// runWatchlist はウォッチリストを表示する。removeIDが0より大きい場合は先に削除する。
func runWatchlist(env *clientEnv, removeID int) error {
	doc := page.NewDocument()
	store := watchlist.NewStore(env.store, env.logger)

	if removeID > 0 {
		if err := store.RemoveAndRender(removeID, doc); err != nil {
			return err
		}
	} else {
		store.Render(doc)
	}
	return page.WriteText(env.out, doc)
}

// heroPrinter は背景の切り替えを1行ずつ出力する。
type heroPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *heroPrinter) ShowHero(imageURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, imageURL)
}

// runHero はヒーロー背景の切り替えをdurationの間表示する。
func runHero(ctx context.Context, env *clientEnv, duration time.Duration) error {
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	shuffler := hero.NewShuffler(env.api, &heroPrinter{w: env.out}, env.cfg.HeroInterval, env.logger)
	defer shuffler.Stop()

	shuffler.Start(ctx)
	if len(shuffler.Pool()) < 2 {
		return nil
	}

	<-ctx.Done()
	return nil
}

// runLogin はemailが指定された場合はFirebaseで、それ以外はサーバーのパスワードログインでサインインする。
func runLogin(ctx context.Context, env *clientEnv, email, username, password string, google bool) error {
	switch {
	case google:
		if err := env.mirror.SignInWithPopup(ctx, session.GoogleProviderID); err != nil {
			return fmt.Errorf("google sign-in failed: %w", err)
		}
		_, err := fmt.Fprintf(env.out, "signed in as %s\n", env.mirror.Label())
		return err
	case email != "":
		if err := env.mirror.SignIn(ctx, email, password); err != nil {
			return fmt.Errorf("sign-in failed: %w", err)
		}
		_, err := fmt.Fprintf(env.out, "signed in as %s\n", env.mirror.Label())
		return err
	case username != "":
		if err := env.api.Login(ctx, username, password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		_, err := fmt.Fprintf(env.out, "logged in as %s\n", username)
		return err
	default:
		return errors.New("one of --email, --username or --google is required")
	}
}

// runGuest はゲストモードに切り替える。
func runGuest(ctx context.Context, env *clientEnv) error {
	if err := env.mirror.ContinueAsGuest(ctx); err != nil {
		return err
	}
	_, err := fmt.Fprintln(env.out, env.mirror.Label())
	return err
}

// runLogout はサインアウトし、サーバーのセッションも破棄する。
func runLogout(ctx context.Context, env *clientEnv) error {
	if err := env.mirror.SignOut(ctx); err != nil {
		return fmt.Errorf("sign-out failed: %w", err)
	}
	if err := env.api.Logout(ctx); err != nil {
		env.logger.Warn("サーバーのログアウトに失敗", slog.String("error", err.Error()))
		// サーバーに到達できない場合も保存済みのセッションは削除する
		if err := env.store.Remove(storage.KeySessionID); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(env.out, "signed out")
	return err
}

// runWhoami は現在の認証状態を表示する。Firebaseでサインイン中はサーバーでトークンを検証する。
func runWhoami(ctx context.Context, env *clientEnv) error {
	switch env.mirror.State().(type) {
	case session.Authenticated:
		user, err := env.api.VerifyToken(ctx)
		if err != nil {
			return fmt.Errorf("token verification failed: %w", err)
		}
		_, err = fmt.Fprintf(env.out, "%s (uid=%s, verified=%t)\n", user.Email, user.UID, user.EmailVerified)
		return err
	case session.Guest:
		_, err := fmt.Fprintln(env.out, session.GuestLabel)
		return err
	default:
		_, err := fmt.Fprintln(env.out, "signed out")
		return err
	}
}
