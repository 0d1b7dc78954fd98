package feedback

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

// Server はフィードバックサービスのHTTPサーバー。
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

// NewServer は新しいフィードバックサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/feedback.db?_journal_mode=WAL&_busy_timeout=5000")
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

	staffOnly := middleware.RequireIdentityRoles(middleware.RoleStaff, middleware.RoleAdmin)

	api := s.router.Group("/api/feedback", middleware.RequireIdentity())
	{
		// フィードバック投稿
		api.POST("", s.handleCreate())
		// フィードバック一覧取得（スタッフ以上）
		api.GET("", staffOnly, s.handleList())
		// フィードバック詳細取得（スタッフ以上）
		api.GET("/:id", staffOnly, s.handleGetByID())
		// フィードバック削除（スタッフ以上）
		api.DELETE("/:id", staffOnly, s.handleDelete())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "feedback"})
	})
}

// createFeedbackRequest はフィードバック投稿リクエストのJSON構造。
type createFeedbackRequest struct {
	// Subject は件名。
	Subject string `json:"subject" binding:"required"`
	// Body は本文。
	Body string `json:"body" binding:"required"`
}

// feedbackResponse はフィードバックのJSONレスポンス構造。
type feedbackResponse struct {
	// ID はフィードバックの一意識別子。
	ID string `json:"id"`
	// UserID は投稿したユーザーのID。
	UserID string `json:"user_id"`
	// Subject は件名。
	Subject string `json:"subject"`
	// Body は本文。
	Body string `json:"body"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
}

// toResponse はFeedback行をレスポンス構造に変換する。
func toResponse(f Feedback) feedbackResponse {
	return feedbackResponse{
		ID:        f.ID,
		UserID:    f.UserID,
		Subject:   f.Subject,
		Body:      f.Body,
		CreatedAt: f.CreatedAt,
	}
}

// handleCreate はフィードバック投稿ハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createFeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		id := uuid.New().String()
		if err := s.queries.CreateFeedback(c.Request.Context(), id, middleware.GetUserID(c), req.Subject, req.Body); err != nil {
			log.Printf("フィードバック作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "フィードバック作成に失敗しました"})
			return
		}

		f, err := s.queries.GetFeedbackByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "フィードバック取得に失敗しました"})
			return
		}
		c.JSON(http.StatusCreated, toResponse(f))
	}
}

// handleList はフィードバック一覧取得ハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		feedbacks, err := s.queries.ListFeedback(c.Request.Context())
		if err != nil {
			log.Printf("フィードバック一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "フィードバック一覧の取得に失敗しました"})
			return
		}

		responses := make([]feedbackResponse, 0, len(feedbacks))
		for _, f := range feedbacks {
			responses = append(responses, toResponse(f))
		}
		c.JSON(http.StatusOK, gin.H{"feedback": responses})
	}
}

// handleGetByID はフィードバック詳細取得ハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := s.queries.GetFeedbackByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "フィードバックが見つかりません"})
			return
		}
		c.JSON(http.StatusOK, toResponse(f))
	}
}

// handleDelete はフィードバック削除ハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := s.queries.GetFeedbackByID(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "フィードバックが見つかりません"})
			return
		}

		if err := s.queries.DeleteFeedback(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "フィードバック削除に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}
