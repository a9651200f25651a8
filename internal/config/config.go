package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config はサーバー全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// TMDB
	TMDBReadToken    string
	TMDBBaseURL      string
	TMDBTimeout      time.Duration
	TMDBCacheTTL     time.Duration
	TMDBRatePerSec   int
	RandomSampleSize int

	// OpenAI
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Firebase
	FirebaseProjectID string

	// Session
	SessionMaxAge int
	RequireAuth   bool

	// Rate Limit
	RateLimitGeneral   int
	RateLimitRecommend int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は未設定のものをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TMDBReadToken = os.Getenv("TMDB_READ_TOKEN")
	if cfg.TMDBReadToken == "" {
		missing = append(missing, "TMDB_READ_TOKEN")
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	if cfg.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TMDBBaseURL = getEnvString("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	cfg.TMDBTimeout = getEnvDuration("TMDB_TIMEOUT", 10*time.Second)
	cfg.TMDBCacheTTL = getEnvDuration("TMDB_CACHE_TTL", 10*time.Minute)
	cfg.TMDBRatePerSec = getEnvInt("TMDB_RATE_PER_SEC", 40)
	cfg.RandomSampleSize = getEnvInt("RANDOM_SAMPLE_SIZE", 12)
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RequireAuth = getEnvBool("REQUIRE_AUTH", false)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRecommend = getEnvInt("RATE_LIMIT_RECOMMEND", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5000")

	return cfg, nil
}

// ClientConfig はCLIクライアント（search, watchlist等）の設定を保持する。
type ClientConfig struct {
	APIURL         string
	StorageDir     string
	FirebaseAPIKey string
	HeroInterval   time.Duration
}

// LoadClient は環境変数からClientConfigを読み込む。
// クライアントに必須の環境変数はない。
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	cfg.APIURL = strings.TrimRight(getEnvString("MOOVIES_API_URL", "http://localhost:5000"), "/")
	cfg.FirebaseAPIKey = getEnvString("FIREBASE_API_KEY", "")
	cfg.HeroInterval = getEnvDuration("HERO_INTERVAL", 6*time.Second)

	cfg.StorageDir = os.Getenv("MOOVIES_STORAGE_DIR")
	if cfg.StorageDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve storage directory: %w", err)
		}
		cfg.StorageDir = filepath.Join(home, ".moovies")
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
