package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitRule は特定のパスプレフィックスに適用するレート制限ルール。
// ルールは定義順に評価され、最初にマッチしたルールだけが適用される。
type RateLimitRule struct {
	// PathPrefix は適用対象のパスプレフィックス（例: "/api/"）。
	PathPrefix string `yaml:"path_prefix"`
	// RequestsPerMinute は1分あたりの平均許容リクエスト数。
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// Burst は瞬間的に許容するリクエスト数（バケット容量）。
	// 0の場合はRequestsPerMinuteと同じ値を使用する。
	Burst int `yaml:"burst"`
}

// tokenBucket はトークンバケット方式のレートリミッター。
// 一定レートでトークンが補充され、リクエストごとに1トークンを消費する。
type tokenBucket struct {
	// tokens は現在のトークン残量。
	tokens float64
	// capacity はバケットの最大容量。
	capacity float64
	// refillPerSec は1秒あたりのトークン補充量。
	refillPerSec float64
	// lastRefill は最後に補充計算を行った時刻。
	lastRefill time.Time
}

// take は1トークンの取得を試みる。取得できなければfalseを返す。
func (b *tokenBucket) take(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillPerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfterSeconds は次の1トークンが補充されるまでの秒数を返す。
func (b *tokenBucket) retryAfterSeconds() int {
	deficit := 1 - b.tokens
	if deficit <= 0 || b.refillPerSec <= 0 {
		return 1
	}
	secs := int(deficit/b.refillPerSec) + 1
	return secs
}

// RateLimit はクライアントIPごとのトークンバケットでレート制限を行う
// Ginミドルウェアを返す。制限超過時は429とRetry-Afterヘッダーを返す。
// ルールが空の場合は何も制限しない。
func RateLimit(rules []RateLimitRule) gin.HandlerFunc {
	var mu sync.Mutex
	// キーは "クライアントIP|パスプレフィックス"
	buckets := make(map[string]*tokenBucket)

	return func(c *gin.Context) {
		rule, ok := matchRule(rules, c.Request.URL.Path)
		if !ok {
			c.Next()
			return
		}

		key := c.ClientIP() + "|" + rule.PathPrefix
		now := time.Now()

		mu.Lock()
		b, ok := buckets[key]
		if !ok {
			capacity := rule.Burst
			if capacity <= 0 {
				capacity = rule.RequestsPerMinute
			}
			b = &tokenBucket{
				tokens:       float64(capacity),
				capacity:     float64(capacity),
				refillPerSec: float64(rule.RequestsPerMinute) / 60.0,
				lastRefill:   now,
			}
			buckets[key] = b
		}
		allowed := b.take(now)
		retryAfter := b.retryAfterSeconds()
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "リクエストが多すぎます",
				"code":  "rate_limited",
			})
			return
		}

		c.Next()
	}
}

// matchRule はパスにマッチする最初のルールを返す。
func matchRule(rules []RateLimitRule, path string) (RateLimitRule, bool) {
	for _, r := range rules {
		if strings.HasPrefix(path, r.PathPrefix) {
			return r, true
		}
	}
	return RateLimitRule{}, false
}
