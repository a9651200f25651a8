// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 上流サービス名（serviceラベル）
const (
	ServiceTMDB     = "tmdb"
	ServiceOpenAI   = "openai"
	ServiceFirebase = "firebase"
)

// 上流呼び出し結果（outcomeラベル）
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeCircuitOpen = "circuit_open"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 上流クライアント、サービス層、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(service, outcome string)
	RecordUpstreamLatency(service string, duration time.Duration)
	RecordCacheLookup(cache string, hit bool)
	RecordHTTPStatus(statusCode int)
	RecordRecommendations(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	recommendations  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moovies_upstream_requests_total",
			Help: "上流サービス呼び出しの結果別合計数",
		}, []string{"service", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moovies_upstream_latency_seconds",
			Help:    "上流サービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moovies_cache_lookups_total",
			Help: "レスポンスキャッシュの参照結果別合計数",
		}, []string{"cache", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moovies_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		recommendations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moovies_recommendations_total",
			Help: "返却したおすすめタイトルの合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.cacheLookups,
		c.httpStatus,
		c.recommendations,
	)

	return c
}

// RecordUpstreamRequest は上流サービス呼び出しの結果を記録する。
func (c *Collector) RecordUpstreamRequest(service, outcome string) {
	c.upstreamRequests.WithLabelValues(service, outcome).Inc()
}

// RecordUpstreamLatency は上流サービス呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(service string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCacheLookup はキャッシュのヒット/ミスを記録する。
func (c *Collector) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRecommendations は返却したおすすめタイトル数を記録する。
func (c *Collector) RecordRecommendations(count int) {
	c.recommendations.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。CLIやテストで使用する。
type Nop struct{}

func (Nop) RecordUpstreamRequest(string, string)        {}
func (Nop) RecordUpstreamLatency(string, time.Duration) {}
func (Nop) RecordCacheLookup(string, bool)              {}
func (Nop) RecordHTTPStatus(int)                        {}
func (Nop) RecordRecommendations(int)                   {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
