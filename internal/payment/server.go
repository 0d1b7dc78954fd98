package payment

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

// Server は決済サービスのHTTPサーバー。
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

// NewServer は新しい決済サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/payment.db?_journal_mode=WAL&_busy_timeout=5000")
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

	api := s.router.Group("/api/payments", middleware.RequireIdentity())
	{
		// 決済作成
		api.POST("", s.handleCreate())
		// 決済一覧取得（本人分。管理者は全件）
		api.GET("", s.handleList())
		// 決済詳細取得（本人または管理者）
		api.GET("/:id", s.handleGetByID())
		// 状態遷移（管理者のみ）
		api.PUT("/:id/status", middleware.RequireIdentityRoles(middleware.RoleAdmin), s.handleUpdateStatus())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment"})
	})
}

// createPaymentRequest は決済作成リクエストのJSON構造。
type createPaymentRequest struct {
	// Amount は金額（最小通貨単位）。
	Amount int64 `json:"amount" binding:"required,gt=0"`
	// Currency は通貨コード（ISO 4217）。
	Currency string `json:"currency" binding:"required,len=3"`
	// Description は決済の説明。
	Description string `json:"description"`
}

// updatePaymentStatusRequest は状態遷移リクエストのJSON構造。
type updatePaymentStatusRequest struct {
	// Status は遷移先の状態（completed / failed）。
	Status string `json:"status" binding:"required"`
}

// paymentResponse は決済のJSONレスポンス構造。
type paymentResponse struct {
	// ID は決済の一意識別子。
	ID string `json:"id"`
	// UserID は決済したユーザーのID。
	UserID string `json:"user_id"`
	// Amount は金額（最小通貨単位）。
	Amount int64 `json:"amount"`
	// Currency は通貨コード。
	Currency string `json:"currency"`
	// Description は決済の説明。
	Description string `json:"description"`
	// Status は状態。
	Status string `json:"status"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// toResponse はPayment行をレスポンス構造に変換する。
func toResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: p.Description,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// handleCreate は決済作成ハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		id := uuid.New().String()
		err := s.queries.CreatePayment(c.Request.Context(), CreatePaymentParams{
			ID:          id,
			UserID:      middleware.GetUserID(c),
			Amount:      req.Amount,
			Currency:    req.Currency,
			Description: req.Description,
		})
		if err != nil {
			log.Printf("決済作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "決済作成に失敗しました"})
			return
		}

		p, err := s.queries.GetPaymentByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "決済取得に失敗しました"})
			return
		}
		c.JSON(http.StatusCreated, toResponse(p))
	}
}

// handleList は決済一覧取得ハンドラを返す。
// 一般ユーザーは本人分のみ、管理者は全件を取得できる。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			payments []Payment
			err      error
		)
		if middleware.GetUserRole(c) == middleware.RoleAdmin {
			payments, err = s.queries.ListAllPayments(c.Request.Context())
		} else {
			payments, err = s.queries.ListPaymentsByUser(c.Request.Context(), middleware.GetUserID(c))
		}
		if err != nil {
			log.Printf("決済一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "決済一覧の取得に失敗しました"})
			return
		}

		responses := make([]paymentResponse, 0, len(payments))
		for _, p := range payments {
			responses = append(responses, toResponse(p))
		}
		c.JSON(http.StatusOK, gin.H{"payments": responses})
	}
}

// handleGetByID は決済詳細取得ハンドラを返す。本人または管理者のみ。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.queries.GetPaymentByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "決済が見つかりません"})
			return
		}

		if p.UserID != middleware.GetUserID(c) && middleware.GetUserRole(c) != middleware.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "この操作を行う権限がありません"})
			return
		}
		c.JSON(http.StatusOK, toResponse(p))
	}
}

// handleUpdateStatus は状態遷移ハンドラを返す。
// createdの決済のみcompletedまたはfailedへ遷移できる。
func (s *Server) handleUpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req updatePaymentStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}
		if req.Status != StatusCompleted && req.Status != StatusFailed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "遷移先はcompletedまたはfailedを指定してください"})
			return
		}

		p, err := s.queries.GetPaymentByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "決済が見つかりません"})
			return
		}
		if p.Status != StatusCreated {
			c.JSON(http.StatusConflict, gin.H{"error": "未処理の決済のみ状態を変更できます"})
			return
		}

		if err := s.queries.UpdatePaymentStatus(c.Request.Context(), id, req.Status); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "状態の更新に失敗しました"})
			return
		}

		updated, err := s.queries.GetPaymentByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "決済取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, toResponse(updated))
	}
}
