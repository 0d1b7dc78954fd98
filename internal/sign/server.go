package sign

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

// Server は交通標識カタログサービスのHTTPサーバー。
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

// NewServer は新しい標識カタログサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/sign.db?_journal_mode=WAL&_busy_timeout=5000")
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
// 閲覧エンドポイントは匿名アクセス可。編集はゲートウェイが
// スタッフ以上に制限した上で、このサービスでも二重に検証する。
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Identity())

	staffOnly := middleware.RequireIdentityRoles(middleware.RoleStaff, middleware.RoleAdmin)

	api := s.router.Group("/api/signs")
	{
		// 標識一覧取得（categoryクエリで絞り込み可）
		api.GET("", s.handleList())
		// 標識詳細取得
		api.GET("/:id", s.handleGetByID())
		// 標識作成
		api.POST("", staffOnly, s.handleCreate())
		// 標識更新
		api.PUT("/:id", staffOnly, s.handleUpdate())
		// 標識削除
		api.DELETE("/:id", staffOnly, s.handleDelete())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "sign"})
	})
}

// signRequest は標識作成・更新リクエストのJSON構造。
type signRequest struct {
	// Name は標識の名称。
	Name string `json:"name" binding:"required"`
	// Description は標識の説明。
	Description string `json:"description"`
	// Category はカテゴリ。
	Category string `json:"category" binding:"required"`
	// ImageURL は標識画像のURL。
	ImageURL string `json:"image_url"`
}

// signResponse は標識のJSONレスポンス構造。
type signResponse struct {
	// ID は標識の一意識別子。
	ID string `json:"id"`
	// Name は標識の名称。
	Name string `json:"name"`
	// Description は標識の説明。
	Description string `json:"description"`
	// Category はカテゴリ。
	Category string `json:"category"`
	// ImageURL は標識画像のURL。
	ImageURL string `json:"image_url"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// toResponse はSign行をレスポンス構造に変換する。
func toResponse(s Sign) signResponse {
	return signResponse{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Category:    s.Category,
		ImageURL:    s.ImageURL,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// handleList は標識一覧取得ハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		signs, err := s.queries.ListSigns(c.Request.Context(), c.Query("category"))
		if err != nil {
			log.Printf("標識一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "標識一覧の取得に失敗しました"})
			return
		}

		responses := make([]signResponse, 0, len(signs))
		for _, sg := range signs {
			responses = append(responses, toResponse(sg))
		}
		c.JSON(http.StatusOK, gin.H{"signs": responses})
	}
}

// handleGetByID は標識詳細取得ハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		sg, err := s.queries.GetSignByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "標識が見つかりません"})
			return
		}
		c.JSON(http.StatusOK, toResponse(sg))
	}
}

// handleCreate は標識作成ハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		id := uuid.New().String()
		err := s.queries.CreateSign(c.Request.Context(), CreateSignParams{
			ID:          id,
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			ImageURL:    req.ImageURL,
		})
		if err != nil {
			log.Printf("標識作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "標識作成に失敗しました"})
			return
		}

		sg, err := s.queries.GetSignByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "標識取得に失敗しました"})
			return
		}
		c.JSON(http.StatusCreated, toResponse(sg))
	}
}

// handleUpdate は標識更新ハンドラを返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req signRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		if _, err := s.queries.GetSignByID(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "標識が見つかりません"})
			return
		}

		err := s.queries.UpdateSign(c.Request.Context(), CreateSignParams{
			ID:          id,
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			ImageURL:    req.ImageURL,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "標識更新に失敗しました"})
			return
		}

		sg, err := s.queries.GetSignByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "標識取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, toResponse(sg))
	}
}

// handleDelete は標識削除ハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := s.queries.GetSignByID(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "標識が見つかりません"})
			return
		}

		if err := s.queries.DeleteSign(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "標識削除に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}
