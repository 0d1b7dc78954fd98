package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/signpost/pkg/httpclient"
	"github.com/nao1215/signpost/pkg/middleware"
)

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はユーザーのメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はユーザーのパスワード。
	Password string `json:"password" binding:"required"`
}

// verifiedUser はユーザーサービスの資格情報検証エンドポイントのレスポンス。
type verifiedUser struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// DisplayName はユーザーの表示名。
	DisplayName string `json:"display_name"`
	// Role はユーザーのロール。
	Role string `json:"role"`
}

// refreshRequest はトークンリフレッシュリクエストのJSON構造。
type refreshRequest struct {
	// RefreshToken は検証対象のリフレッシュトークン。
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// handleLogin はログインハンドラを返す。
// 資格情報の検証はユーザーサービスに委譲し、成功時にアクセストークンと
// リフレッシュトークンを発行する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "emailとpasswordは必須です"})
			return
		}

		baseURL, ok := s.registry.Resolve(ServiceUser)
		if !ok {
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "サービスが見つかりません",
				"code":  "service_unresolved",
			})
			return
		}

		ctx := httpclient.WithCorrelationID(c.Request.Context(), middleware.GetCorrelationID(c))
		client := httpclient.New(baseURL)

		var user verifiedUser
		if err := client.PostJSON(ctx, "/api/users/verify-credentials", req, &user); err != nil {
			var statusErr *httpclient.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "メールアドレスまたはパスワードが正しくありません",
					"code":  "invalid_credentials",
				})
				return
			}
			s.logger.Error("資格情報の検証に失敗",
				zap.String("correlation_id", middleware.GetCorrelationID(c)),
				zap.Error(err),
			)
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "内部サービスとの通信に失敗しました",
				"code":  "upstream_unreachable",
			})
			return
		}

		role, _ := middleware.ParseRole(user.Role)
		principal := &middleware.Principal{
			UserID: user.ID,
			Name:   user.DisplayName,
			Email:  user.Email,
			Role:   role,
			Source: middleware.TokenSourceLocal,
		}

		accessToken, err := s.issuer.IssueAccessToken(principal)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}
		refreshToken, err := s.issuer.IssueRefreshToken(principal)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_type":    "Bearer",
			"expires_in":    int(s.issuer.AccessTTL.Seconds()),
		})
	}
}

// handleRefresh はトークンリフレッシュハンドラを返す。
// リフレッシュトークンは署名・発行者・対象者に加えて有効期限も検証する。
// 期限切れの場合は新しいトークンを発行せず401を返す。
func (s *Server) handleRefresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_tokenは必須です"})
			return
		}

		principal, err := s.localVerifier.VerifyRefresh(req.RefreshToken)
		if err != nil {
			code := middleware.CodeTokenInvalid
			if errors.Is(err, middleware.ErrTokenExpired) {
				code = middleware.CodeTokenExpired
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "リフレッシュトークンが無効です",
				"code":  code,
			})
			return
		}

		accessToken, err := s.issuer.IssueAccessToken(principal)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expires_in":   int(s.issuer.AccessTTL.Seconds()),
		})
	}
}
