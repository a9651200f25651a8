package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/moovies/internal/auth"
	"github.com/hitoshi/moovies/internal/metrics"
	"github.com/hitoshi/moovies/internal/middleware"
	"github.com/hitoshi/moovies/internal/web"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Authenticator     middleware.RequestAuthenticator
	RequireAuth       bool
	CSRFConfig        middleware.CSRFConfig

	// 運用
	Logger           *slog.Logger
	HealthChecker    Pinger
	MetricsGatherer  prometheus.Gatherer
	MetricsCollector metrics.MetricsCollector

	// 認証
	AuthService   AuthServiceInterface
	TokenVerifier auth.TokenVerifier
	AuthConfig    AuthHandlerConfig

	// 映画
	MovieService     MovieServiceInterface
	RecommendService RecommendServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Recovery → SecurityHeaders → Metrics → Logging → CORS → CSRF
//	  /api/movie 等: → Auth → RateLimit(General) [→ RateLimit(Recommend)]
//
// ページシェル、ログイン、トークン検証、運用エンドポイントは認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.MetricsCollector
	if collector == nil {
		collector = metrics.Nop{}
	}

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger, collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.TokenVerifier, deps.AuthConfig)
	movieHandler := NewMovieHandler(deps.MovieService)
	recommendHandler := NewRecommendHandler(deps.RecommendService)

	// --- 認証不要のルート ---

	// ページシェル
	r.Get("/", pageHandler(web.PageLogin))
	r.Get("/login", pageHandler(web.PageLogin))
	r.Get("/app", pageHandler(web.PageApp))
	r.Get("/watchlist", pageHandler(web.PageWatchlist))

	// 運用
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Post("/verify-token", authHandler.VerifyToken)

		// --- 認証ミドルウェア配下のルート ---
		// ミドルウェアスタック: Auth → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.Authenticator, deps.RequireAuth))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/movie", movieHandler.Lookup)
			r.Get("/random-movies", movieHandler.RandomMovies)

			// POST /api/recommend - 上流コストが高いため専用レート制限を追加
			r.With(deps.RateLimiter.RecommendMiddleware()).Post("/recommend", recommendHandler.Recommend)
		})
	})

	return r
}
