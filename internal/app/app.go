package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/moovies/internal/auth"
	"github.com/hitoshi/moovies/internal/config"
	"github.com/hitoshi/moovies/internal/database"
	"github.com/hitoshi/moovies/internal/handler"
	"github.com/hitoshi/moovies/internal/logger"
	"github.com/hitoshi/moovies/internal/metrics"
	"github.com/hitoshi/moovies/internal/middleware"
	"github.com/hitoshi/moovies/internal/movie"
	"github.com/hitoshi/moovies/internal/recommend"
	"github.com/hitoshi/moovies/internal/repository"
	"github.com/hitoshi/moovies/internal/security"
	"github.com/hitoshi/moovies/internal/tmdb"
	"github.com/hitoshi/moovies/internal/worker/cleanup"
)

const (
	shutdownTimeout = 30 * time.Second
	openAITimeout   = 60 * time.Second
	dbPingTimeout   = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サーバー系のサブコマンドはstdoutにJSONログを出力し、
// クライアント系のサブコマンドは結果をstdoutに、ログをstderrに出力する。
func Run(stdout, stderr io.Writer, args []string) error {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.Execute()
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newRouterDeps は全依存関係をワイヤリングする。
// regにはメトリクスを登録し、gathererを/metricsで公開する。
func newRouterDeps(cfg *config.Config, db *sql.DB, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*handler.RouterDeps, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 2. 外部APIの宛先検証
	guard := security.NewOutboundGuard()
	if err := guard.ValidateBaseURL(cfg.TMDBBaseURL); err != nil {
		return nil, fmt.Errorf("invalid TMDB_BASE_URL: %w", err)
	}
	if err := guard.ValidateBaseURL(cfg.OpenAIBaseURL); err != nil {
		return nil, fmt.Errorf("invalid OPENAI_BASE_URL: %w", err)
	}

	collector := metrics.NewCollector(reg)
	log := slog.Default()

	// 3. ドメインサービスの初期化
	tmdbClient := tmdb.NewClient(guard.NewClient(cfg.TMDBTimeout), log, tmdb.Config{
		BaseURL:    cfg.TMDBBaseURL,
		ReadToken:  cfg.TMDBReadToken,
		CacheTTL:   cfg.TMDBCacheTTL,
		RatePerSec: float64(cfg.TMDBRatePerSec),
	}, collector)
	movieService := movie.NewService(tmdbClient, security.NewContentSanitizer(), log, cfg.RandomSampleSize)

	openAIClient := recommend.NewOpenAIClient(guard.NewClient(openAITimeout), log, recommend.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	}, collector)
	recommendService := recommend.NewService(openAIClient, log, collector)

	verifier := auth.NewFirebaseVerifier(auth.FirebaseConfig{ProjectID: cfg.FirebaseProjectID})
	authService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})

	// 4. ルーター依存の構築
	return &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter: middleware.NewRateLimiter(
			middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitRecommend),
		),
		Authenticator: auth.NewAuthenticator(verifier, authService),
		RequireAuth:   cfg.RequireAuth,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		Logger:           log,
		HealthChecker:    db,
		MetricsGatherer:  gatherer,
		MetricsCollector: collector,

		AuthService:   authService,
		TokenVerifier: verifier,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		MovieService:     movieService,
		RecommendService: recommendService,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	deps, err := newRouterDeps(cfg, db, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second, // おすすめ取得はOpenAIの応答を待つ
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを日次で実行し、シグナル受信で終了する。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())

	slog.Info("worker starting", slog.Duration("cleanup_interval", cleanup.DefaultInterval))
	job.Start(ctx, cleanup.DefaultInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runAddUser はパスワードログイン用のユーザーを作成する。
func runAddUser(ctx context.Context, cfg *config.Config, out io.Writer, username, password string) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	service := auth.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	user, err := service.CreateUser(ctx, username, password)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "created user %s (%s)\n", user.Username, user.ID)
	return err
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "5000"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
