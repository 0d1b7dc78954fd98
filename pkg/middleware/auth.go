package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenVerifier はベアラートークンの検証戦略を表す。
// LocalVerifier（HMAC署名トークン）とFirebaseVerifier（外部IDプロバイダ）が実装する。
type TokenVerifier interface {
	// Verify はトークンを検証し、プリンシパルを構築する。
	Verify(ctx context.Context, tokenString string) (*Principal, error)
}

// 認証失敗レスポンスのcodeフィールドに設定するエラーコード。
const (
	// CodeTokenMissing はAuthorizationヘッダーの欠落を表す。
	CodeTokenMissing = "token_missing"
	// CodeTokenExpired はトークンの有効期限切れを表す。
	CodeTokenExpired = "token_expired"
	// CodeTokenInvalid はトークンの検証失敗を表す。
	CodeTokenInvalid = "token_invalid"
	// CodeForbidden はロール不一致による認可失敗を表す。
	CodeForbidden = "forbidden"
)

// Authenticate はベアラートークンを検証するGinミドルウェアを返す。
// 設定された検証戦略を順に試行し、最初に成功した戦略のプリンシパルを採用する。
// すべての戦略が失敗した場合は401を返しパイプラインを打ち切る。
// 有効期限切れが検出された場合はcodeにtoken_expiredを設定する。
func Authenticate(verifiers ...TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
				"code":  CodeTokenMissing,
			})
			return
		}

		p, err := verifyWithAll(c.Request.Context(), verifiers, tokenString)
		if err != nil {
			code := CodeTokenInvalid
			if errors.Is(err, ErrTokenExpired) {
				code = CodeTokenExpired
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
				"code":  code,
			})
			return
		}

		SetPrincipal(c, p)
		c.Next()
	}
}

// AuthenticateOptional は匿名アクセスを許可するルート用の認証ミドルウェアを返す。
// トークンが存在し検証に成功した場合のみプリンシパルを設定し、
// トークンの欠落や検証失敗ではリクエストを打ち切らない。
func AuthenticateOptional(verifiers ...TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if p, err := verifyWithAll(c.Request.Context(), verifiers, tokenString); err == nil {
				SetPrincipal(c, p)
			}
		}
		c.Next()
	}
}

// bearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

// verifyWithAll は検証戦略を順に試行する。
// すべて失敗した場合、有効期限切れを最優先で報告する。
// 期限切れのトークンが別の戦略で「形式不正」と判定されても、
// 呼び出し元には期限切れとして伝えるため。
func verifyWithAll(ctx context.Context, verifiers []TokenVerifier, tokenString string) (*Principal, error) {
	var firstErr error
	var expiredErr error
	for _, v := range verifiers {
		p, err := v.Verify(ctx, tokenString)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, ErrTokenExpired) && expiredErr == nil {
			expiredErr = err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if expiredErr != nil {
		return nil, expiredErr
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrTokenInvalid
}
