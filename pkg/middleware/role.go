package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRoles はルートごとのロール許可リストを強制するGinミドルウェアを返す。
// Authenticateミドルウェアの後段に適用すること。
//
// 許可リストが空の場合は「認証済みであれば誰でも可」を意味する。
// プリンシパルが存在しない場合は401、ロールが許可リストに
// 含まれない場合は403を返す。401と403は明確に区別する。
func RequireRoles(roles ...Role) gin.HandlerFunc {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証が必要です",
				"code":  CodeTokenMissing,
			})
			return
		}

		if len(allowed) > 0 {
			if _, ok := allowed[p.Role]; !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "この操作を行う権限がありません",
					"code":  CodeForbidden,
				})
				return
			}
		}

		c.Next()
	}
}
