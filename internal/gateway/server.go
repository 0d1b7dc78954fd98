package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/signpost/pkg/middleware"
)

// Server はAPI GatewayサービスのHTTPサーバー。
// 相関ID付与→アクセスログ→認証→認可→ユーザー情報伝播→サービス解決→転送
// の順で構成されるパイプラインとして動作する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はゲートウェイの設定。
	cfg Config
	// registry は論理サービス名→ベースURLのレジストリ。
	registry *ServiceRegistry
	// issuer はアクセス・リフレッシュトークンの発行器。
	issuer *middleware.TokenIssuer
	// localVerifier はローカルHMACトークンの検証器。
	localVerifier *middleware.LocalVerifier
	// firebaseVerifier はFirebase IDトークンの検証器。無効時はnil。
	firebaseVerifier *middleware.FirebaseVerifier
	// httpClient は内部サービスへの転送に使用するHTTPクライアント。
	// タイムアウトは設定せず、呼び出し元のコンテキストに委ねる。
	httpClient *http.Client
	// logger は構造化ログの出力先。
	logger *zap.Logger
	// metrics はPrometheusメトリクスのコレクター。
	metrics *Metrics
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT署名用の秘密鍵が設定されていません")
	}

	s := &Server{
		cfg:      cfg,
		registry: NewServiceRegistry(cfg.Services),
		issuer: &middleware.TokenIssuer{
			Secret:     cfg.JWT.Secret,
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
			AccessTTL:  time.Duration(cfg.JWT.AccessTokenMinutes) * time.Minute,
			RefreshTTL: time.Duration(cfg.JWT.RefreshTokenMinutes) * time.Minute,
		},
		localVerifier: &middleware.LocalVerifier{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		},
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    NewMetrics(),
	}

	if cfg.Firebase.Enabled {
		s.firebaseVerifier = middleware.NewFirebaseVerifier(cfg.Firebase.ProjectID)
		if err := s.firebaseVerifier.Init(); err != nil {
			return nil, fmt.Errorf("Firebase検証器の初期化に失敗: %w", err)
		}
	}

	router := gin.New()
	router.Use(middleware.Correlation())
	router.Use(middleware.AccessLog(logger))
	router.Use(s.metrics.Middleware())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(middleware.RateLimit(cfg.RateLimits))

	s.router = router
	s.setupRoutes()

	return s, nil
}

// Registry はサービスレジストリを返す。設定ファイル監視による
// ホットリロードのために公開する。
func (s *Server) Registry() *ServiceRegistry {
	return s.registry
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// verifiers は設定に基づく検証戦略の試行順を返す。
// Firebase検証が有効かつprimary指定の場合はFirebaseを先に試行する。
func (s *Server) verifiers() []middleware.TokenVerifier {
	if s.firebaseVerifier == nil {
		return []middleware.TokenVerifier{s.localVerifier}
	}
	if s.cfg.Firebase.Primary {
		return []middleware.TokenVerifier{s.firebaseVerifier, s.localVerifier}
	}
	return []middleware.TokenVerifier{s.localVerifier, s.firebaseVerifier}
}

// setupRoutes はAPIルーティングを設定する。
// ルートごとのロール許可リストはここで宣言する。
func (s *Server) setupRoutes() {
	authRequired := middleware.Authenticate(s.verifiers()...)
	authOptional := middleware.AuthenticateOptional(s.verifiers()...)
	staffOnly := middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin)
	adminOnly := middleware.RequireRoles(middleware.RoleAdmin)

	// 認証エンドポイント（認証不要）
	auth := s.router.Group("/auth")
	{
		auth.POST("/login", s.handleLogin())
		auth.POST("/refresh", s.handleRefresh())
	}

	api := s.router.Group("/api")

	// ユーザー（プロキシ）。新規登録のみ匿名可
	users := api.Group("/users")
	{
		users.POST("", authOptional, s.handleProxy(ServiceUser, "/api/users"))
		users.GET("", authRequired, staffOnly, s.handleProxy(ServiceUser, "/api/users"))
		users.GET("/:id", authRequired, s.handleProxyWithParam(ServiceUser, "/api/users/", "id"))
		users.PUT("/:id", authRequired, s.handleProxyWithParam(ServiceUser, "/api/users/", "id"))
		users.DELETE("/:id", authRequired, adminOnly, s.handleProxyWithParam(ServiceUser, "/api/users/", "id"))
		users.PUT("/:id/role", authRequired, adminOnly, s.handleProxyWithParam(ServiceUser, "/api/users/", "id", "/role"))
	}

	// 交通標識カタログ（プロキシ）。閲覧は匿名可、編集はスタッフ以上
	signs := api.Group("/signs")
	{
		signs.GET("", authOptional, s.handleProxy(ServiceTrafficSign, "/api/signs"))
		signs.GET("/:id", authOptional, s.handleProxyWithParam(ServiceTrafficSign, "/api/signs/", "id"))
		signs.POST("", authRequired, staffOnly, s.handleProxy(ServiceTrafficSign, "/api/signs"))
		signs.PUT("/:id", authRequired, staffOnly, s.handleProxyWithParam(ServiceTrafficSign, "/api/signs/", "id"))
		signs.DELETE("/:id", authRequired, staffOnly, s.handleProxyWithParam(ServiceTrafficSign, "/api/signs/", "id"))
	}

	// 標識投稿（プロキシ）。状態遷移はスタッフ以上
	contributions := api.Group("/contributions", authRequired)
	{
		contributions.GET("", s.handleProxy(ServiceContribution, "/api/contributions"))
		contributions.GET("/:id", s.handleProxyWithParam(ServiceContribution, "/api/contributions/", "id"))
		contributions.POST("", s.handleProxy(ServiceContribution, "/api/contributions"))
		contributions.PUT("/:id/status", staffOnly, s.handleProxyWithParam(ServiceContribution, "/api/contributions/", "id", "/status"))
		contributions.DELETE("/:id", s.handleProxyWithParam(ServiceContribution, "/api/contributions/", "id"))
	}

	// 投票（プロキシ）
	votes := api.Group("/votes", authRequired)
	{
		votes.POST("", s.handleProxy(ServiceVoting, "/api/votes"))
		votes.DELETE("/:contribution_id", s.handleProxyWithParam(ServiceVoting, "/api/votes/", "contribution_id"))
		votes.GET("/tally/:contribution_id", s.handleProxyWithParam(ServiceVoting, "/api/votes/tally/", "contribution_id"))
	}

	// 決済（プロキシ）。状態遷移は管理者のみ
	payments := api.Group("/payments", authRequired)
	{
		payments.POST("", s.handleProxy(ServicePayment, "/api/payments"))
		payments.GET("", s.handleProxy(ServicePayment, "/api/payments"))
		payments.GET("/:id", s.handleProxyWithParam(ServicePayment, "/api/payments/", "id"))
		payments.PUT("/:id/status", adminOnly, s.handleProxyWithParam(ServicePayment, "/api/payments/", "id", "/status"))
	}

	// 通知（プロキシ）
	notifications := api.Group("/notifications", authRequired)
	{
		notifications.GET("", s.handleProxy(ServiceNotification, "/api/notifications"))
		notifications.GET("/unread", s.handleProxy(ServiceNotification, "/api/notifications/unread"))
		notifications.PUT("/:id/read", s.handleProxyWithParam(ServiceNotification, "/api/notifications/", "id", "/read"))
		notifications.PUT("/read-all", s.handleProxy(ServiceNotification, "/api/notifications/read-all"))
	}

	// フィードバック（プロキシ）。閲覧・削除はスタッフ以上
	feedback := api.Group("/feedback", authRequired)
	{
		feedback.POST("", s.handleProxy(ServiceFeedback, "/api/feedback"))
		feedback.GET("", staffOnly, s.handleProxy(ServiceFeedback, "/api/feedback"))
		feedback.GET("/:id", staffOnly, s.handleProxyWithParam(ServiceFeedback, "/api/feedback/", "id"))
		feedback.DELETE("/:id", staffOnly, s.handleProxyWithParam(ServiceFeedback, "/api/feedback/", "id"))
	}

	// メトリクス・ヘルスチェック（認証不要）
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}
