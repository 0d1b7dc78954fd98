package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ゲートウェイが内部サービスへユーザー情報を伝播するためのHTTPヘッダーキー。
// これらのヘッダーはゲートウェイだけが設定する。外部から届いた同名ヘッダーは
// ゲートウェイが転送前に必ず除去するため、内部サービスは値を信頼してよい。
const (
	// HeaderUserID はユーザーIDを伝播するヘッダーキー。
	HeaderUserID = "X-User-Id"
	// HeaderUserRole はユーザーのロールを伝播するヘッダーキー。
	HeaderUserRole = "X-User-Role"
	// HeaderUserName はユーザーの表示名を伝播するヘッダーキー。
	HeaderUserName = "X-User-Name"
)

// Ginコンテキストにヘッダー由来のユーザー情報を格納するためのキー。
const (
	contextKeyUserID   = "user_id"
	contextKeyUserRole = "user_role"
	contextKeyUserName = "user_name"
)

// Identity はゲートウェイが付与したX-User-*ヘッダーを読み取り、
// Ginコンテキストに設定するミドルウェアを返す。内部サービスで使用する。
// ヘッダーが存在しない場合は何も設定せず次へ進む。
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(HeaderUserID); id != "" {
			c.Set(contextKeyUserID, id)
		}
		if role := c.GetHeader(HeaderUserRole); role != "" {
			r, _ := ParseRole(role)
			c.Set(contextKeyUserRole, r)
		}
		if name := c.GetHeader(HeaderUserName); name != "" {
			c.Set(contextKeyUserName, name)
		}
		c.Next()
	}
}

// RequireIdentity はユーザーIDヘッダーの存在を必須とするミドルウェアを返す。
// ゲートウェイを経由しない直接アクセスを拒否するために内部サービスで使用する。
// Identityミドルウェアの後段に適用すること。
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証が必要です",
				"code":  CodeTokenMissing,
			})
			return
		}
		c.Next()
	}
}

// RequireIdentityRoles は指定ロールのいずれかを必須とするミドルウェアを返す。
// 許可リストが空の場合は「ユーザーIDが伝播されていれば誰でも可」を意味する。
// Identityミドルウェアの後段に適用すること。
func RequireIdentityRoles(roles ...Role) gin.HandlerFunc {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		if GetUserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証が必要です",
				"code":  CodeTokenMissing,
			})
			return
		}
		if len(allowed) > 0 {
			if _, ok := allowed[GetUserRole(c)]; !ok {
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

// GetUserID はGinコンテキストからユーザーIDを取得する。
// IdentityミドルウェアまたはSetPrincipalが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	if p, ok := GetPrincipal(c); ok {
		return p.UserID
	}
	if id, ok := c.Get(contextKeyUserID); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// GetUserRole はGinコンテキストからユーザーのロールを取得する。
// 不明な場合は最小権限のRoleUserを返す。
func GetUserRole(c *gin.Context) Role {
	if p, ok := GetPrincipal(c); ok {
		return p.Role
	}
	if role, ok := c.Get(contextKeyUserRole); ok {
		if r, ok := role.(Role); ok {
			return r
		}
	}
	return RoleUser
}

// GetUserName はGinコンテキストからユーザーの表示名を取得する。
func GetUserName(c *gin.Context) string {
	if p, ok := GetPrincipal(c); ok {
		return p.Name
	}
	if name, ok := c.Get(contextKeyUserName); ok {
		if s, ok := name.(string); ok {
			return s
		}
	}
	return ""
}
