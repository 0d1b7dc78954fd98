package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog はリクエスト・レスポンスの構造化ログを記録するGinミドルウェアを返す。
// 1リクエストにつき受信時と完了時の2レコードを、同一の相関IDをキーとして出力する。
// レスポンスボディには一切手を加えない。
//
// Recoveryミドルウェアより先に適用すること。パニックはRecoveryが
// 500レスポンスへ変換した後にこのミドルウェアへ戻るため、
// 失敗したリクエストも必ず完了レコードが記録される。
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		logger.Info("リクエスト受信",
			zap.String("correlation_id", GetCorrelationID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("client_ip", c.ClientIP()),
		)

		c.Next()

		// 認証ミドルウェアは後段で動くため、ユーザーIDは完了時にのみ判明する
		userID := ""
		if p, ok := GetPrincipal(c); ok {
			userID = p.UserID
		}

		fields := []zap.Field{
			zap.String("correlation_id", GetCorrelationID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("user_id", userID),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}

		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
			logger.Error("リクエスト失敗", fields...)
			return
		}
		logger.Info("リクエスト完了", fields...)
	}
}
