package vote

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/signpost/pkg/middleware"
)

// Server は投票サービスのHTTPサーバー。
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

// NewServer は新しい投票サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/vote.db?_journal_mode=WAL&_busy_timeout=5000")
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

	api := s.router.Group("/api/votes", middleware.RequireIdentity())
	{
		// 投票（再投票は置き換え）
		api.POST("", s.handleCast())
		// 投票の取り消し
		api.DELETE("/:contribution_id", s.handleRetract())
		// 賛否集計の取得
		api.GET("/tally/:contribution_id", s.handleTally())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "vote"})
	})
}

// castVoteRequest は投票リクエストのJSON構造。
type castVoteRequest struct {
	// ContributionID は投票対象の投稿ID。
	ContributionID string `json:"contribution_id" binding:"required"`
	// Direction は投票の向き（up / down）。
	Direction string `json:"direction" binding:"required"`
}

// handleCast は投票ハンドラを返す。
func (s *Server) handleCast() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req castVoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}
		if req.Direction != DirectionUp && req.Direction != DirectionDown {
			c.JSON(http.StatusBadRequest, gin.H{"error": "投票の向きはupまたはdownを指定してください"})
			return
		}

		userID := middleware.GetUserID(c)
		if err := s.queries.CastVote(c.Request.Context(), req.ContributionID, userID, req.Direction); err != nil {
			log.Printf("投票登録エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投票に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"contribution_id": req.ContributionID,
			"user_id":         userID,
			"direction":       req.Direction,
		})
	}
}

// handleRetract は投票取り消しハンドラを返す。
func (s *Server) handleRetract() gin.HandlerFunc {
	return func(c *gin.Context) {
		contributionID := c.Param("contribution_id")
		userID := middleware.GetUserID(c)

		affected, err := s.queries.RetractVote(c.Request.Context(), contributionID, userID)
		if err != nil {
			log.Printf("投票取り消しエラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投票の取り消しに失敗しました"})
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "投票が見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"retracted": contributionID})
	}
}

// handleTally は賛否集計取得ハンドラを返す。
func (s *Server) handleTally() gin.HandlerFunc {
	return func(c *gin.Context) {
		tally, err := s.queries.GetTally(c.Request.Context(), c.Param("contribution_id"))
		if err != nil {
			log.Printf("集計取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "集計の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"contribution_id": tally.ContributionID,
			"up":              tally.Up,
			"down":            tally.Down,
		})
	}
}
