package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// stubVerifier はテスト用の検証戦略。固定の結果を返す。
type stubVerifier struct {
	principal *Principal
	err       error
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (*Principal, error) {
	return s.principal, s.err
}

// newAuthRouter は認証ミドルウェア付きのテストルーターを構築するヘルパー関数。
func newAuthRouter(optional bool, verifiers ...TokenVerifier) *gin.Engine {
	router := gin.New()
	if optional {
		router.Use(AuthenticateOptional(verifiers...))
	} else {
		router.Use(Authenticate(verifiers...))
	}
	router.GET("/test", func(c *gin.Context) {
		if p, ok := GetPrincipal(c); ok {
			c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": string(p.Role)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": ""})
	})
	return router
}

// parseAuthBody はレスポンスボディをmapにデコードするヘルパー関数。
func parseAuthBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v, body=%s", err, w.Body.String())
	}
	return body
}

// TestAuthenticate はAuthenticateミドルウェアを検証する。
func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでプリンシパルが設定されること", func(t *testing.T) {
		t.Parallel()

		issuer := newTestIssuer(t)
		tokenStr, err := issuer.IssueAccessToken(&Principal{UserID: "user-ok", Role: RoleAdmin})
		if err != nil {
			t.Fatalf("IssueAccessToken()でエラーが発生: %v", err)
		}

		router := newAuthRouter(false, newTestVerifier(t))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		body := parseAuthBody(t, w)
		if body["user_id"] != "user-ok" {
			t.Errorf("user_id = %v, want user-ok", body["user_id"])
		}
		if body["role"] != "Admin" {
			t.Errorf("role = %v, want Admin", body["role"])
		}
	})

	t.Run("Authorizationヘッダーが無い場合は401とtoken_missing", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(false, newTestVerifier(t))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if body := parseAuthBody(t, w); body["code"] != CodeTokenMissing {
			t.Errorf("code = %v, want %v", body["code"], CodeTokenMissing)
		}
	})

	t.Run("Bearer接頭辞が無い場合は401とtoken_missing", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(false, newTestVerifier(t))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "some-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if body := parseAuthBody(t, w); body["code"] != CodeTokenMissing {
			t.Errorf("code = %v, want %v", body["code"], CodeTokenMissing)
		}
	})

	t.Run("無効なトークンは401とtoken_invalid", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(false, newTestVerifier(t))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if body := parseAuthBody(t, w); body["code"] != CodeTokenInvalid {
			t.Errorf("code = %v, want %v", body["code"], CodeTokenInvalid)
		}
	})

	t.Run("期限切れトークンは401とtoken_expired", func(t *testing.T) {
		t.Parallel()

		tokenStr := signTestToken(t, testSecret, Claims{
			RegisteredClaims: baseClaims(t, -time.Minute),
			UserID:           "user-expired",
			TokenType:        tokenTypeAccess,
		})

		router := newAuthRouter(false, newTestVerifier(t))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if body := parseAuthBody(t, w); body["code"] != CodeTokenExpired {
			t.Errorf("code = %v, want %v", body["code"], CodeTokenExpired)
		}
	})

	t.Run("複数の検証戦略を順に試行すること", func(t *testing.T) {
		t.Parallel()

		failing := &stubVerifier{err: ErrTokenInvalid}
		succeeding := &stubVerifier{principal: &Principal{UserID: "user-second", Role: RoleUser}}

		router := newAuthRouter(false, failing, succeeding)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if body := parseAuthBody(t, w); body["user_id"] != "user-second" {
			t.Errorf("user_id = %v, want user-second", body["user_id"])
		}
	})

	t.Run("いずれかの戦略で期限切れならtoken_expiredを優先すること", func(t *testing.T) {
		t.Parallel()

		expired := &stubVerifier{err: ErrTokenExpired}
		invalid := &stubVerifier{err: ErrTokenInvalid}

		router := newAuthRouter(false, expired, invalid)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if body := parseAuthBody(t, w); body["code"] != CodeTokenExpired {
			t.Errorf("code = %v, want %v", body["code"], CodeTokenExpired)
		}
	})
}

// TestAuthenticateOptional はAuthenticateOptionalミドルウェアを検証する。
func TestAuthenticateOptional(t *testing.T) {
	t.Parallel()

	t.Run("トークンが無くてもリクエストが通ること", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(true, newTestVerifier(t))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if body := parseAuthBody(t, w); body["user_id"] != "" {
			t.Errorf("user_id = %v, want empty", body["user_id"])
		}
	})

	t.Run("無効なトークンでもリクエストが通ること", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(true, newTestVerifier(t))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if body := parseAuthBody(t, w); body["user_id"] != "" {
			t.Errorf("user_id = %v, want empty", body["user_id"])
		}
	})

	t.Run("有効なトークンがあればプリンシパルが設定されること", func(t *testing.T) {
		t.Parallel()

		issuer := newTestIssuer(t)
		tokenStr, err := issuer.IssueAccessToken(&Principal{UserID: "user-opt"})
		if err != nil {
			t.Fatalf("IssueAccessToken()でエラーが発生: %v", err)
		}

		router := newAuthRouter(true, newTestVerifier(t))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if body := parseAuthBody(t, w); body["user_id"] != "user-opt" {
			t.Errorf("user_id = %v, want user-opt", body["user_id"])
		}
	})
}
