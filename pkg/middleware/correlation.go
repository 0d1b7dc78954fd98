package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderCorrelationID はリクエストのライフサイクルを追跡するための相関IDヘッダーキー。
// リクエスト・レスポンスの両方に付与され、内部サービスへも転送される。
const HeaderCorrelationID = "X-Correlation-ID"

// contextKeyCorrelationID はGinコンテキストに相関IDを格納するためのキー。
const contextKeyCorrelationID = "correlation_id"

// correlationContextKey は標準のcontext.Contextに相関IDを格納するためのキー型。
type correlationContextKey struct{}

// Correlation は全リクエストに相関IDを付与するGinミドルウェアを返す。
// 相関IDは以下の優先順位で決定する。
//
//  1. インバウンドリクエストのX-Correlation-IDヘッダー
//  2. 新規に生成したUUID
//
// 決定した相関IDはGinコンテキスト・リクエストコンテキスト・
// レスポンスヘッダーの3箇所に設定する。失敗することはない。
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(contextKeyCorrelationID, correlationID)
		c.Request = c.Request.WithContext(
			WithCorrelationID(c.Request.Context(), correlationID),
		)
		c.Writer.Header().Set(HeaderCorrelationID, correlationID)

		c.Next()
	}
}

// GetCorrelationID はGinコンテキストから相関IDを取得する。
// Correlationミドルウェアが事前に適用されていない場合は空文字列を返す。
func GetCorrelationID(c *gin.Context) string {
	if id, ok := c.Get(contextKeyCorrelationID); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// WithCorrelationID はコンテキストに相関IDを設定する。
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationContextKey{}, id)
}

// CorrelationIDFromContext はコンテキストから相関IDを取得する。
// 設定されていない場合は空文字列を返す。
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationContextKey{}).(string); ok {
		return id
	}
	return ""
}
