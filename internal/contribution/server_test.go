package contribution

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/signpost/pkg/httpclient"
	"github.com/nao1215/signpost/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer はインメモリSQLiteを使用するテスト用サーバーを生成する。
// 通知サービスにはリクエスト数を記録するモックを使用する。
func newTestServer(t *testing.T) (*Server, *atomic.Int64) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	notified := &atomic.Int64{}
	notificationService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/notifications/internal/send" {
			notified.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if _, err := w.Write([]byte(`{"id":"notif-1"}`)); err != nil {
			t.Errorf("レスポンスの書き込みに失敗: %v", err)
		}
	}))
	t.Cleanup(notificationService.Close)

	s := &Server{
		router:             gin.New(),
		port:               "0",
		queries:            NewQueries(sqlDB),
		db:                 sqlDB,
		notificationClient: httpclient.New(notificationService.URL),
	}
	s.setupRoutes()
	return s, notified
}

// doRequest はゲートウェイを模したユーザー情報ヘッダー付きリクエストを実行する。
func doRequest(s *Server, method, path string, body any, userID string, role middleware.Role) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUserRole, string(role))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// createTestContribution は投稿を作成してIDを返すヘルパー関数。
func createTestContribution(t *testing.T, s *Server, userID string) string {
	t.Helper()

	w := doRequest(s, http.MethodPost, "/api/contributions", gin.H{
		"sign_id":   "sign-1",
		"latitude":  35.6812,
		"longitude": 139.7671,
		"comment":   "駅前の交差点で発見",
	}, userID, middleware.RoleUser)
	if w.Code != http.StatusCreated {
		t.Fatalf("投稿作成に失敗: ステータスコード = %d, body = %s", w.Code, w.Body.String())
	}

	var body contributionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	return body.ID
}

// TestHandleCreate は投稿作成を検証する。
func TestHandleCreate(t *testing.T) {
	t.Parallel()

	t.Run("投稿が作成され初期状態がpendingであること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/contributions", gin.H{
			"sign_id":   "sign-1",
			"latitude":  35.6812,
			"longitude": 139.7671,
			"comment":   "駅前の交差点で発見",
		}, "user-1", middleware.RoleUser)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d, body = %s", w.Code, http.StatusCreated, w.Body.String())
		}
		var body contributionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body.Status != StatusPending {
			t.Errorf("Status = %q, want %q", body.Status, StatusPending)
		}
		// 投稿者はリクエストボディではなくゲートウェイのヘッダーから決まる
		if body.UserID != "user-1" {
			t.Errorf("UserID = %q, want %q", body.UserID, "user-1")
		}
	})

	t.Run("未認証には401が返ること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/contributions", gin.H{
			"sign_id":   "sign-1",
			"latitude":  35.6812,
			"longitude": 139.7671,
		}, "", middleware.RoleUser)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("必須フィールドが欠けている場合400が返ること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/contributions", gin.H{
			"comment": "座標なし",
		}, "user-1", middleware.RoleUser)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleList は投稿一覧取得を検証する。
func TestHandleList(t *testing.T) {
	t.Parallel()

	t.Run("全投稿を取得できること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		createTestContribution(t, s, "user-1")
		createTestContribution(t, s, "user-2")

		w := doRequest(s, http.MethodGet, "/api/contributions", nil, "user-1", middleware.RoleUser)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body struct {
			Contributions []contributionResponse `json:"contributions"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if len(body.Contributions) != 2 {
			t.Errorf("投稿数 = %d, want 2", len(body.Contributions))
		}
	})

	t.Run("状態で絞り込めること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")
		createTestContribution(t, s, "user-2")

		wApprove := doRequest(s, http.MethodPut, "/api/contributions/"+id+"/status", gin.H{
			"status": StatusApproved,
		}, "staff-1", middleware.RoleStaff)
		if wApprove.Code != http.StatusOK {
			t.Fatalf("承認のステータスコード = %d, want %d", wApprove.Code, http.StatusOK)
		}

		w := doRequest(s, http.MethodGet, "/api/contributions?status=pending", nil, "user-1", middleware.RoleUser)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body struct {
			Contributions []contributionResponse `json:"contributions"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if len(body.Contributions) != 1 {
			t.Fatalf("投稿数 = %d, want 1", len(body.Contributions))
		}
		if body.Contributions[0].Status != StatusPending {
			t.Errorf("Status = %q, want %q", body.Contributions[0].Status, StatusPending)
		}
	})

	t.Run("不明な状態で400が返ること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)

		w := doRequest(s, http.MethodGet, "/api/contributions?status=unknown", nil, "user-1", middleware.RoleUser)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleUpdateStatus は状態遷移と通知を検証する。
func TestHandleUpdateStatus(t *testing.T) {
	t.Parallel()

	t.Run("スタッフは承認でき投稿者へ通知されること", func(t *testing.T) {
		t.Parallel()
		s, notified := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		w := doRequest(s, http.MethodPut, "/api/contributions/"+id+"/status", gin.H{
			"status": StatusApproved,
		}, "staff-1", middleware.RoleStaff)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
		}
		var body contributionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body.Status != StatusApproved {
			t.Errorf("Status = %q, want %q", body.Status, StatusApproved)
		}
		if notified.Load() != 1 {
			t.Errorf("通知送信回数 = %d, want 1", notified.Load())
		}
	})

	t.Run("却下も同様に遷移できること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		w := doRequest(s, http.MethodPut, "/api/contributions/"+id+"/status", gin.H{
			"status": StatusRejected,
		}, "staff-1", middleware.RoleStaff)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body contributionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body.Status != StatusRejected {
			t.Errorf("Status = %q, want %q", body.Status, StatusRejected)
		}
	})

	t.Run("確定済みの投稿は再遷移できず409が返ること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		if w := doRequest(s, http.MethodPut, "/api/contributions/"+id+"/status", gin.H{
			"status": StatusApproved,
		}, "staff-1", middleware.RoleStaff); w.Code != http.StatusOK {
			t.Fatalf("1回目のステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		w := doRequest(s, http.MethodPut, "/api/contributions/"+id+"/status", gin.H{
			"status": StatusRejected,
		}, "staff-1", middleware.RoleStaff)

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("pendingへの遷移指定は400が返ること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		w := doRequest(s, http.MethodPut, "/api/contributions/"+id+"/status", gin.H{
			"status": StatusPending,
		}, "staff-1", middleware.RoleStaff)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("一般ユーザーには403が返ること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		w := doRequest(s, http.MethodPut, "/api/contributions/"+id+"/status", gin.H{
			"status": StatusApproved,
		}, "user-1", middleware.RoleUser)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("存在しない投稿で404が返ること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)

		w := doRequest(s, http.MethodPut, "/api/contributions/nonexistent/status", gin.H{
			"status": StatusApproved,
		}, "staff-1", middleware.RoleStaff)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("通知サービスが停止していても状態遷移は成功すること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		// 通知クライアントを到達不能な宛先に差し替える
		s.notificationClient = httpclient.New("http://127.0.0.1:1")

		w := doRequest(s, http.MethodPut, "/api/contributions/"+id+"/status", gin.H{
			"status": StatusApproved,
		}, "staff-1", middleware.RoleStaff)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body contributionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body.Status != StatusApproved {
			t.Errorf("Status = %q, want %q", body.Status, StatusApproved)
		}
	})
}

// TestHandleDelete は投稿削除を検証する。
func TestHandleDelete(t *testing.T) {
	t.Parallel()

	t.Run("本人は自分の投稿を削除できること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		w := doRequest(s, http.MethodDelete, "/api/contributions/"+id, nil, "user-1", middleware.RoleUser)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		wGet := doRequest(s, http.MethodGet, "/api/contributions/"+id, nil, "user-1", middleware.RoleUser)
		if wGet.Code != http.StatusNotFound {
			t.Errorf("削除後の取得のステータスコード = %d, want %d", wGet.Code, http.StatusNotFound)
		}
	})

	t.Run("他人の投稿は削除できないこと", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		w := doRequest(s, http.MethodDelete, "/api/contributions/"+id, nil, "user-2", middleware.RoleUser)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("スタッフは他人の投稿を削除できること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)
		id := createTestContribution(t, s, "user-1")

		w := doRequest(s, http.MethodDelete, "/api/contributions/"+id, nil, "staff-1", middleware.RoleStaff)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("存在しない投稿で404が返ること", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t)

		w := doRequest(s, http.MethodDelete, "/api/contributions/nonexistent", nil, "user-1", middleware.RoleUser)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}
