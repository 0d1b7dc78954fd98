package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// firebaseTestProject はテスト用のFirebaseプロジェクトID。
const firebaseTestProject = "signpost-test"

// firebaseTestEnv はFirebase検証のテスト環境。
// 自己署名証明書とそれを配布するモックサーバーを保持する。
type firebaseTestEnv struct {
	key      *rsa.PrivateKey
	kid      string
	verifier *FirebaseVerifier
}

// newFirebaseTestEnv は自己署名証明書を生成し、証明書配布のモックサーバーと
// それを参照するFirebase検証器を構築するヘルパー関数。
func newFirebaseTestEnv(t *testing.T) *firebaseTestEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("RSA鍵の生成に失敗: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("証明書の生成に失敗: %v", err)
	}
	pemCert := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))

	kid := "test-kid-1"
	certsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{kid: pemCert}); err != nil {
			t.Errorf("証明書レスポンスの書き込みに失敗: %v", err)
		}
	}))
	t.Cleanup(certsServer.Close)

	verifier := NewFirebaseVerifier(firebaseTestProject)
	verifier.certsURL = certsServer.URL

	return &firebaseTestEnv{key: key, kid: kid, verifier: verifier}
}

// signFirebaseToken は指定クレームでRS256トークンを署名するヘルパー関数。
func (e *firebaseTestEnv) signFirebaseToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = e.kid
	signed, err := token.SignedString(e.key)
	if err != nil {
		t.Fatalf("Firebaseトークンの署名に失敗: %v", err)
	}
	return signed
}

// validFirebaseClaims は検証を通過する最小限のクレームを返すヘルパー関数。
func validFirebaseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": firebaseIssuerPrefix + firebaseTestProject,
		"aud": firebaseTestProject,
		"sub": "firebase-uid-1",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}

// TestFirebaseVerifierInit はInitの冪等性と設定検証を確認する。
func TestFirebaseVerifierInit(t *testing.T) {
	t.Parallel()

	t.Run("プロジェクトID未設定の場合はエラー", func(t *testing.T) {
		t.Parallel()

		v := NewFirebaseVerifier("")
		if err := v.Init(); !errors.Is(err, ErrFirebaseNotConfigured) {
			t.Errorf("err = %v, want ErrFirebaseNotConfigured", err)
		}
	})

	t.Run("複数回呼び出しても安全であること", func(t *testing.T) {
		t.Parallel()

		v := NewFirebaseVerifier(firebaseTestProject)
		if err := v.Init(); err != nil {
			t.Fatalf("1回目のInit()でエラーが発生: %v", err)
		}
		if err := v.Init(); err != nil {
			t.Fatalf("2回目のInit()でエラーが発生: %v", err)
		}
	})
}

// TestFirebaseVerifierVerify はFirebase IDトークンの検証を確認する。
func TestFirebaseVerifierVerify(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンからプリンシパルを構築できること", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		claims := validFirebaseClaims()
		claims["name"] = "Firebaseユーザー"
		claims["email"] = "fb@example.com"
		tokenStr := env.signFirebaseToken(t, claims)

		p, err := env.verifier.Verify(t.Context(), tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if p.UserID != "firebase-uid-1" {
			t.Errorf("UserID = %q, want %q", p.UserID, "firebase-uid-1")
		}
		if p.Name != "Firebaseユーザー" {
			t.Errorf("Name = %q, want %q", p.Name, "Firebaseユーザー")
		}
		if p.Email != "fb@example.com" {
			t.Errorf("Email = %q, want %q", p.Email, "fb@example.com")
		}
		if p.Source != TokenSourceFirebase {
			t.Errorf("Source = %q, want %q", p.Source, TokenSourceFirebase)
		}
	})

	t.Run("ロールのカスタムクレームが解釈されること", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		claims := validFirebaseClaims()
		claims["role"] = "Staff"
		tokenStr := env.signFirebaseToken(t, claims)

		p, err := env.verifier.Verify(t.Context(), tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if p.Role != RoleStaff {
			t.Errorf("Role = %q, want %q", p.Role, RoleStaff)
		}
	})

	t.Run("ロールクレームが無い場合はUserになること", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		tokenStr := env.signFirebaseToken(t, validFirebaseClaims())

		p, err := env.verifier.Verify(t.Context(), tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if p.Role != RoleUser {
			t.Errorf("Role = %q, want %q", p.Role, RoleUser)
		}
	})

	t.Run("期限切れトークンはErrTokenExpiredを返すこと", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		claims := validFirebaseClaims()
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		tokenStr := env.signFirebaseToken(t, claims)

		_, err := env.verifier.Verify(t.Context(), tokenStr)
		if !errors.Is(err, ErrTokenExpired) {
			t.Errorf("err = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("発行者が異なるトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		claims := validFirebaseClaims()
		claims["iss"] = firebaseIssuerPrefix + "other-project"
		tokenStr := env.signFirebaseToken(t, claims)

		if _, err := env.verifier.Verify(t.Context(), tokenStr); err == nil {
			t.Error("異なる発行者のトークンがエラーを返すべき")
		}
	})

	t.Run("対象者が異なるトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		claims := validFirebaseClaims()
		claims["aud"] = "other-project"
		tokenStr := env.signFirebaseToken(t, claims)

		if _, err := env.verifier.Verify(t.Context(), tokenStr); err == nil {
			t.Error("異なる対象者のトークンがエラーを返すべき")
		}
	})

	t.Run("subクレームが無いトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		claims := validFirebaseClaims()
		delete(claims, "sub")
		tokenStr := env.signFirebaseToken(t, claims)

		if _, err := env.verifier.Verify(t.Context(), tokenStr); err == nil {
			t.Error("subクレームが無いトークンがエラーを返すべき")
		}
	})

	t.Run("未知のkidのトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, validFirebaseClaims())
		token.Header["kid"] = "unknown-kid"
		tokenStr, err := token.SignedString(env.key)
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}

		if _, err := env.verifier.Verify(t.Context(), tokenStr); err == nil {
			t.Error("未知のkidのトークンがエラーを返すべき")
		}
	})

	t.Run("HS256で署名されたトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, validFirebaseClaims())
		token.Header["kid"] = env.kid
		tokenStr, err := token.SignedString([]byte("hmac-secret"))
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}

		if _, err := env.verifier.Verify(t.Context(), tokenStr); err == nil {
			t.Error("HS256トークンがエラーを返すべき")
		}
	})

	t.Run("2回目の検証は証明書キャッシュを使うこと", func(t *testing.T) {
		t.Parallel()

		env := newFirebaseTestEnv(t)
		tokenStr := env.signFirebaseToken(t, validFirebaseClaims())

		if _, err := env.verifier.Verify(t.Context(), tokenStr); err != nil {
			t.Fatalf("1回目のVerify()でエラーが発生: %v", err)
		}

		// モックサーバーを閉じてもキャッシュで検証できる
		env.verifier.certsURL = "http://127.0.0.1:1"
		if _, err := env.verifier.Verify(t.Context(), tokenStr); err != nil {
			t.Errorf("キャッシュを使った2回目のVerify()でエラーが発生: %v", err)
		}
	})
}
