package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はゲートウェイのPrometheusメトリクスを保持する。
// テストでの重複登録を避けるため、グローバルレジストリではなく
// インスタンスごとの専用レジストリを使用する。
type Metrics struct {
	// registry はこのインスタンス専用のPrometheusレジストリ。
	registry *prometheus.Registry
	// requestsTotal はルート・メソッド・ステータス別のリクエスト数。
	requestsTotal *prometheus.CounterVec
	// requestDuration はルート・メソッド別のリクエスト処理時間。
	requestDuration *prometheus.HistogramVec
}

// NewMetrics は新しいメトリクスコレクターを生成する。
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "ゲートウェイが処理したリクエストの総数",
		},
		[]string{"method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "ゲートウェイのリクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(requestsTotal, requestDuration)

	return &Metrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
	}
}

// Middleware はリクエストごとにメトリクスを記録するGinミドルウェアを返す。
// ラベルにはパスそのものではなくルートパターンを使用し、カーディナリティの
// 爆発を防ぐ。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		m.requestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(
			c.Request.Method, route,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler は/metricsエンドポイント用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
