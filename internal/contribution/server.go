package contribution

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/signpost/pkg/httpclient"
	"github.com/nao1215/signpost/pkg/middleware"
)

// Server は標識投稿サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はクエリ実行オブジェクト。
	queries *Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// notificationClient は通知サービスへのHTTPクライアント。
	notificationClient *httpclient.Client
}

// NewServer は新しい投稿サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/contribution.db?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	notificationURL := os.Getenv("NOTIFICATION_SERVICE_URL")
	if notificationURL == "" {
		notificationURL = "http://localhost:8086"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:             router,
		port:               port,
		queries:            NewQueries(sqlDB),
		db:                 sqlDB,
		notificationClient: httpclient.New(notificationURL),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Identity())

	api := s.router.Group("/api/contributions", middleware.RequireIdentity())
	{
		// 投稿作成
		api.POST("", s.handleCreate())
		// 投稿一覧取得（statusクエリで絞り込み可）
		api.GET("", s.handleList())
		// 投稿詳細取得
		api.GET("/:id", s.handleGetByID())
		// 状態遷移（スタッフ以上）
		api.PUT("/:id/status", middleware.RequireIdentityRoles(middleware.RoleStaff, middleware.RoleAdmin), s.handleUpdateStatus())
		// 投稿削除（本人またはスタッフ以上）
		api.DELETE("/:id", s.handleDelete())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "contribution"})
	})
}

// createContributionRequest は投稿作成リクエストのJSON構造。
type createContributionRequest struct {
	// SignID は報告対象の標識ID。
	SignID string `json:"sign_id" binding:"required"`
	// Latitude は緯度。
	Latitude float64 `json:"latitude" binding:"required"`
	// Longitude は経度。
	Longitude float64 `json:"longitude" binding:"required"`
	// Comment は投稿者のコメント。
	Comment string `json:"comment"`
}

// updateStatusRequest は状態遷移リクエストのJSON構造。
type updateStatusRequest struct {
	// Status は遷移先の状態（approved / rejected）。
	Status string `json:"status" binding:"required"`
}

// contributionResponse は投稿のJSONレスポンス構造。
type contributionResponse struct {
	// ID は投稿の一意識別子。
	ID string `json:"id"`
	// UserID は投稿したユーザーのID。
	UserID string `json:"user_id"`
	// SignID は報告対象の標識ID。
	SignID string `json:"sign_id"`
	// Latitude は緯度。
	Latitude float64 `json:"latitude"`
	// Longitude は経度。
	Longitude float64 `json:"longitude"`
	// Comment は投稿者のコメント。
	Comment string `json:"comment"`
	// Status は状態。
	Status string `json:"status"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// toResponse はContribution行をレスポンス構造に変換する。
func toResponse(co Contribution) contributionResponse {
	return contributionResponse{
		ID:        co.ID,
		UserID:    co.UserID,
		SignID:    co.SignID,
		Latitude:  co.Latitude,
		Longitude: co.Longitude,
		Comment:   co.Comment,
		Status:    co.Status,
		CreatedAt: co.CreatedAt,
		UpdatedAt: co.UpdatedAt,
	}
}

// handleCreate は投稿作成ハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createContributionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		id := uuid.New().String()
		err := s.queries.CreateContribution(c.Request.Context(), CreateContributionParams{
			ID:        id,
			UserID:    middleware.GetUserID(c),
			SignID:    req.SignID,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Comment:   req.Comment,
		})
		if err != nil {
			log.Printf("投稿作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿作成に失敗しました"})
			return
		}

		co, err := s.queries.GetContributionByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿取得に失敗しました"})
			return
		}
		c.JSON(http.StatusCreated, toResponse(co))
	}
}

// handleList は投稿一覧取得ハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		if status != "" && status != StatusPending && status != StatusApproved && status != StatusRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "不明な状態です"})
			return
		}

		contributions, err := s.queries.ListContributions(c.Request.Context(), status)
		if err != nil {
			log.Printf("投稿一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿一覧の取得に失敗しました"})
			return
		}

		responses := make([]contributionResponse, 0, len(contributions))
		for _, co := range contributions {
			responses = append(responses, toResponse(co))
		}
		c.JSON(http.StatusOK, gin.H{"contributions": responses})
	}
}

// handleGetByID は投稿詳細取得ハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		co, err := s.queries.GetContributionByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "投稿が見つかりません"})
			return
		}
		c.JSON(http.StatusOK, toResponse(co))
	}
}

// handleUpdateStatus は状態遷移ハンドラを返す。
// 状態確定時は投稿者へ通知を送る。通知の失敗は状態遷移を妨げない。
func (s *Server) handleUpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}
		if req.Status != StatusApproved && req.Status != StatusRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "遷移先はapprovedまたはrejectedを指定してください"})
			return
		}

		co, err := s.queries.GetContributionByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "投稿が見つかりません"})
			return
		}
		if co.Status != StatusPending {
			c.JSON(http.StatusConflict, gin.H{"error": "審査待ちの投稿のみ状態を変更できます"})
			return
		}

		if err := s.queries.UpdateContributionStatus(c.Request.Context(), id, req.Status); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "状態の更新に失敗しました"})
			return
		}

		s.notifyContributor(c, co, req.Status)

		updated, err := s.queries.GetContributionByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, toResponse(updated))
	}
}

// handleDelete は投稿削除ハンドラを返す。本人またはスタッフ以上のみ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		co, err := s.queries.GetContributionByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "投稿が見つかりません"})
			return
		}

		role := middleware.GetUserRole(c)
		isStaff := role == middleware.RoleStaff || role == middleware.RoleAdmin
		if co.UserID != middleware.GetUserID(c) && !isStaff {
			c.JSON(http.StatusForbidden, gin.H{"error": "この操作を行う権限がありません"})
			return
		}

		if err := s.queries.DeleteContribution(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿削除に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

// notifyContributor は状態確定を投稿者へ通知する。ベストエフォート。
func (s *Server) notifyContributor(c *gin.Context, co Contribution, status string) {
	title := "投稿が承認されました"
	message := fmt.Sprintf("標識 %s の報告が承認されました。", co.SignID)
	if status == StatusRejected {
		title = "投稿が却下されました"
		message = fmt.Sprintf("標識 %s の報告は確認できませんでした。", co.SignID)
	}

	ctx := httpclient.WithCorrelationID(c.Request.Context(), middleware.GetCorrelationID(c))
	err := s.notificationClient.PostJSON(ctx, "/api/notifications/internal/send", map[string]string{
		"user_id": co.UserID,
		"title":   title,
		"message": message,
	}, nil)
	if err != nil {
		log.Printf("通知送信エラー: contribution=%s, error=%v", co.ID, err)
	}
}
