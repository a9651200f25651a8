package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"

	"github.com/hitoshi/moovies/internal/model"
)

const (
	defaultFirebaseCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	firebaseIssuerPrefix    = "https://securetoken.google.com/"

	// ProviderFirebase はFirebase IDトークンで認証された呼び出し元のProvider名。
	ProviderFirebase = "firebase"

	certsCacheKey     = "certs"
	defaultCertsTTL   = time.Hour
	firebaseClockSkew = 30 * time.Second
)

// IDトークン検証エラー
var (
	// ErrInvalidIDToken はIDトークンが不正であることを表す。
	ErrInvalidIDToken = errors.New("invalid ID token")

	// ErrIDTokenExpired はIDトークンの有効期限切れを表す。
	ErrIDTokenExpired = errors.New("ID token expired")

	// ErrMissingSubject はsubクレームが空であることを表す。
	ErrMissingSubject = errors.New("missing subject claim")
)

// FirebaseConfig はFirebaseVerifierの設定。
type FirebaseConfig struct {
	ProjectID string

	// テスト用にオーバーライド可能
	CertsURL   string
	HTTPClient *http.Client
}

// firebaseClaims はFirebase IDトークンのクレーム。
type firebaseClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// FirebaseVerifier はFirebase IDトークン（RS256）を検証する。
// 署名検証用の公開鍵はGoogleのx509証明書エンドポイントから取得し、
// Cache-Controlのmax-ageに従ってキャッシュする。
type FirebaseVerifier struct {
	projectID  string
	certsURL   string
	httpClient *http.Client
	keys       *cache.Cache

	// 証明書の同時再取得を防ぐ
	refreshMu sync.Mutex
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(cfg FirebaseConfig) *FirebaseVerifier {
	if cfg.CertsURL == "" {
		cfg.CertsURL = defaultFirebaseCertsURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &FirebaseVerifier{
		projectID:  cfg.ProjectID,
		certsURL:   cfg.CertsURL,
		httpClient: cfg.HTTPClient,
		keys:       cache.New(defaultCertsTTL, 10*time.Minute),
	}
}

// Verify はIDトークンを検証し、呼び出し元のIdentityを返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*model.Identity, error) {
	if idToken == "" {
		return nil, ErrInvalidIDToken
	}

	claims := &firebaseClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return v.publicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(firebaseIssuerPrefix+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(firebaseClockSkew),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrIDTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidIDToken, err.Error())
	}
	if !token.Valid {
		return nil, ErrInvalidIDToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return &model.Identity{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Provider:      ProviderFirebase,
	}, nil
}

// publicKey はkidに対応する公開鍵を返す。
// キャッシュに無い場合（鍵ローテーション直後を含む）は証明書を1回だけ再取得する。
func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if keys, ok := v.cachedKeys(); ok {
		if key, found := keys[kid]; found {
			return key, nil
		}
	}

	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	// 待機中に別のgoroutineが更新済みの場合
	if keys, ok := v.cachedKeys(); ok {
		if key, found := keys[kid]; found {
			return key, nil
		}
	}

	keys, ttl, err := v.fetchCerts(ctx)
	if err != nil {
		return nil, err
	}
	v.keys.Set(certsCacheKey, keys, ttl)

	key, found := keys[kid]
	if !found {
		return nil, fmt.Errorf("no certificate for kid %s", kid)
	}
	return key, nil
}

func (v *FirebaseVerifier) cachedKeys() (map[string]*rsa.PublicKey, bool) {
	cached, ok := v.keys.Get(certsCacheKey)
	if !ok {
		return nil, false
	}
	keys, ok := cached.(map[string]*rsa.PublicKey)
	return keys, ok
}

// fetchCerts は証明書一覧を取得し、kidごとのRSA公開鍵とキャッシュ期間を返す。
func (v *FirebaseVerifier) fetchCerts(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read certs response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("certs fetch failed with status %d", resp.StatusCode)
	}

	var pems map[string]string
	if err := json.Unmarshal(body, &pems); err != nil {
		return nil, 0, fmt.Errorf("failed to parse certs response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			slog.Warn("skipping unparsable certificate",
				slog.String("kid", kid),
				slog.String("error", err.Error()),
			)
			continue
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return nil, 0, errors.New("no usable certificates in response")
	}

	return keys, parseMaxAge(resp.Header.Get("Cache-Control")), nil
}

// parseMaxAge はCache-Controlヘッダーからmax-ageを取り出す。
// 見つからない場合はdefaultCertsTTLを返す。
func parseMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		value, ok := strings.CutPrefix(directive, "max-age=")
		if !ok {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return defaultCertsTTL
		}
		return time.Duration(seconds) * time.Second
	}
	return defaultCertsTTL
}
