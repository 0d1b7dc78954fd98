package notification

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/signpost/pkg/middleware"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はクエリ実行オブジェクト。
	queries *Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/notification.db?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		port:    port,
		queries: NewQueries(sqlDB),
		db:      sqlDB,
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

	api := s.router.Group("/api/notifications")
	{
		user := api.Group("", middleware.RequireIdentity())
		{
			// 通知一覧取得
			user.GET("", s.handleList())
			// 未読通知一覧取得
			user.GET("/unread", s.handleListUnread())
			// 通知を既読にする
			user.PUT("/:id/read", s.handleMarkAsRead())
			// 全通知を既読にする
			user.PUT("/read-all", s.handleMarkAllAsRead())
		}

		// 通知作成（内部API - 投稿サービスなどから呼び出される）
		api.POST("/internal/send", s.handleSend())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時。
	CreatedAt string `json:"created_at"`
}

// toResponse はNotification行をレスポンス構造に変換する。
func toResponse(n Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead != 0,
		CreatedAt: n.CreatedAt,
	}
}

// toResponses はNotificationスライスをレスポンススライスに変換する。
func toResponses(notifications []Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toResponse(n))
	}
	return responses
}

// handleList は通知一覧取得ハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.queries.ListNotificationsByUserID(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			log.Printf("通知一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": toResponses(notifications)})
	}
}

// handleListUnread は未読通知一覧取得ハンドラを返す。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.queries.ListUnreadNotifications(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			log.Printf("未読通知一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": toResponses(notifications)})
	}
}

// handleMarkAsRead は既読処理ハンドラを返す。本人の通知のみ操作できる。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		n, err := s.queries.GetNotificationByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		}
		if n.UserID != middleware.GetUserID(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			return
		}

		if err := s.queries.MarkAsRead(c.Request.Context(), id); err != nil {
			log.Printf("通知既読処理エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// handleMarkAllAsRead は全件既読処理ハンドラを返す。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.queries.MarkAllAsRead(c.Request.Context(), middleware.GetUserID(c)); err != nil {
			log.Printf("全通知既読処理エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました"})
	}
}

// sendRequest は通知作成リクエストのJSON構造。
type sendRequest struct {
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id" binding:"required"`
	// Title は通知のタイトル。
	Title string `json:"title" binding:"required"`
	// Message は通知メッセージ。
	Message string `json:"message" binding:"required"`
}

// handleSend は通知作成ハンドラを返す。
// 内部API。ゲートウェイ経由では公開されず、サービス間通信でのみ使用する。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		id := uuid.New().String()
		err := s.queries.CreateNotification(c.Request.Context(), CreateNotificationParams{
			ID:      id,
			UserID:  req.UserID,
			Title:   req.Title,
			Message: req.Message,
		})
		if err != nil {
			log.Printf("通知作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": id, "message": "通知を送信しました"})
	}
}
