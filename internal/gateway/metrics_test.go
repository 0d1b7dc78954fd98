package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestMetrics はPrometheusメトリクスの記録と公開を検証する。
func TestMetrics(t *testing.T) {
	t.Parallel()

	t.Run("リクエストがルートパターン別にカウントされること", func(t *testing.T) {
		t.Parallel()

		m := NewMetrics()
		router := gin.New()
		router.Use(m.Middleware())
		router.GET("/api/signs/:id", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/api/signs/stop-1", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
		}

		body := scrapeMetrics(t, m)
		want := `gateway_requests_total{method="GET",route="/api/signs/:id",status="200"} 2`
		if !strings.Contains(body, want) {
			t.Errorf("メトリクス出力に %q が含まれない:\n%s", want, body)
		}
		if !strings.Contains(body, `gateway_request_duration_seconds_count{method="GET",route="/api/signs/:id"} 2`) {
			t.Error("処理時間ヒストグラムが記録されていない")
		}
	})

	t.Run("ルートにマッチしないリクエストはunmatchedとして記録されること", func(t *testing.T) {
		t.Parallel()

		m := NewMetrics()
		router := gin.New()
		router.Use(m.Middleware())

		req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		body := scrapeMetrics(t, m)
		want := `gateway_requests_total{method="GET",route="unmatched",status="404"} 1`
		if !strings.Contains(body, want) {
			t.Errorf("メトリクス出力に %q が含まれない:\n%s", want, body)
		}
	})

	t.Run("インスタンスごとにレジストリが独立していること", func(t *testing.T) {
		t.Parallel()

		m1 := NewMetrics()
		m2 := NewMetrics()

		router := gin.New()
		router.Use(m1.Middleware())
		router.GET("/api/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if strings.Contains(scrapeMetrics(t, m2), "gateway_requests_total{") {
			t.Error("別インスタンスのメトリクスが混入している")
		}
	})
}

// scrapeMetrics はメトリクスハンドラの出力を取得するヘルパー関数。
func scrapeMetrics(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	return w.Body.String()
}
