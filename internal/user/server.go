package user

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/signpost/pkg/middleware"
)

// Server はユーザーサービスのHTTPサーバー。
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

// NewServer は新しいユーザーサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/user.db?_journal_mode=WAL&_busy_timeout=5000")
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

	api := s.router.Group("/api/users")
	{
		// 新規登録（匿名可。ゲートウェイ経由の登録フロー）
		api.POST("", s.handleCreate())
		// 資格情報検証（内部API - ゲートウェイのログイン処理から呼び出される）
		api.POST("/verify-credentials", s.handleVerifyCredentials())
		// ユーザー一覧（スタッフ以上）
		api.GET("", middleware.RequireIdentityRoles(middleware.RoleStaff, middleware.RoleAdmin), s.handleList())
		// ユーザー詳細（本人またはスタッフ以上）
		api.GET("/:id", middleware.RequireIdentity(), s.handleGetByID())
		// プロファイル更新（本人または管理者）
		api.PUT("/:id", middleware.RequireIdentity(), s.handleUpdate())
		// ユーザー削除（管理者のみ）
		api.DELETE("/:id", middleware.RequireIdentityRoles(middleware.RoleAdmin), s.handleDelete())
		// ロール変更（管理者のみ）
		api.PUT("/:id/role", middleware.RequireIdentityRoles(middleware.RoleAdmin), s.handleUpdateRole())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "user"})
	})
}

// createUserRequest はユーザー登録リクエストのJSON構造。
type createUserRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password はパスワード（8文字以上）。
	Password string `json:"password" binding:"required,min=8"`
	// DisplayName は表示名。
	DisplayName string `json:"display_name" binding:"required"`
}

// verifyCredentialsRequest は資格情報検証リクエストのJSON構造。
type verifyCredentialsRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// updateUserRequest はプロファイル更新リクエストのJSON構造。
type updateUserRequest struct {
	// DisplayName は表示名。
	DisplayName string `json:"display_name" binding:"required"`
	// Password は新しいパスワード。省略時は変更しない。
	Password string `json:"password"`
}

// updateRoleRequest はロール変更リクエストのJSON構造。
type updateRoleRequest struct {
	// Role は新しいロール（User / Staff / Admin）。
	Role string `json:"role" binding:"required"`
}

// userResponse はユーザーのJSONレスポンス構造。パスワードハッシュは含めない。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// DisplayName は表示名。
	DisplayName string `json:"display_name"`
	// Role はロール。
	Role string `json:"role"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
}

// toResponse はUser行をレスポンス構造に変換する。
func toResponse(u User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

// handleCreate はユーザー登録ハンドラを返す。
// 登録時のロールは常にUser。ロールの昇格は管理者による別操作で行う。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードの処理に失敗しました"})
			return
		}

		id := uuid.New().String()
		err = s.queries.CreateUser(c.Request.Context(), CreateUserParams{
			ID:           id,
			Email:        strings.ToLower(req.Email),
			DisplayName:  req.DisplayName,
			Role:         string(middleware.RoleUser),
			PasswordHash: string(hash),
		})
		if err != nil {
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "このメールアドレスは既に登録されています"})
				return
			}
			log.Printf("ユーザー作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー作成に失敗しました"})
			return
		}

		user, err := s.queries.GetUserByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}
		c.JSON(http.StatusCreated, toResponse(user))
	}
}

// handleVerifyCredentials は資格情報検証ハンドラを返す。
// ユーザーの存在有無を推測させないため、未登録とパスワード不一致で
// 同一のレスポンスを返す。
func (s *Server) handleVerifyCredentials() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyCredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		user, err := s.queries.GetUserByEmail(c.Request.Context(), strings.ToLower(req.Email))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}

		c.JSON(http.StatusOK, toResponse(user))
	}
}

// handleList はユーザー一覧取得ハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.queries.ListUsers(c.Request.Context())
		if err != nil {
			log.Printf("ユーザー一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			return
		}

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			responses = append(responses, toResponse(u))
		}
		c.JSON(http.StatusOK, gin.H{"users": responses})
	}
}

// handleGetByID はユーザー詳細取得ハンドラを返す。
// 本人以外のプロファイルはスタッフ以上のみ閲覧できる。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !s.isSelfOrRole(c, id, middleware.RoleStaff, middleware.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "この操作を行う権限がありません"})
			return
		}

		user, err := s.queries.GetUserByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		c.JSON(http.StatusOK, toResponse(user))
	}
}

// handleUpdate はプロファイル更新ハンドラを返す。本人または管理者のみ。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !s.isSelfOrRole(c, id, middleware.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "この操作を行う権限がありません"})
			return
		}

		var req updateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		if _, err := s.queries.GetUserByID(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}

		if err := s.queries.UpdateUserProfile(c.Request.Context(), id, req.DisplayName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー更新に失敗しました"})
			return
		}

		if req.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードの処理に失敗しました"})
				return
			}
			if err := s.queries.UpdateUserPassword(c.Request.Context(), id, string(hash)); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー更新に失敗しました"})
				return
			}
		}

		user, err := s.queries.GetUserByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, toResponse(user))
	}
}

// handleDelete はユーザー削除ハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := s.queries.GetUserByID(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}

		if err := s.queries.DeleteUser(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー削除に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

// handleUpdateRole はロール変更ハンドラを返す。
func (s *Server) handleUpdateRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req updateRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエスト形式が不正です"})
			return
		}

		role, ok := middleware.ParseRole(req.Role)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "不明なロールです"})
			return
		}

		if _, err := s.queries.GetUserByID(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}

		if err := s.queries.UpdateUserRole(c.Request.Context(), id, string(role)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ロール変更に失敗しました"})
			return
		}

		user, err := s.queries.GetUserByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, toResponse(user))
	}
}

// isSelfOrRole は操作対象が本人、または指定ロールのいずれかであるかを判定する。
func (s *Server) isSelfOrRole(c *gin.Context, targetID string, roles ...middleware.Role) bool {
	if middleware.GetUserID(c) == targetID {
		return true
	}
	current := middleware.GetUserRole(c)
	for _, r := range roles {
		if current == r {
			return true
		}
	}
	return false
}

// isUniqueViolation はUNIQUE制約違反かどうかを判定する。
// ドライバ固有のエラー型に依存しないよう、メッセージで判定する。
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
