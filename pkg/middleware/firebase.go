package middleware

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// firebaseCertsURL はFirebase IDトークンの署名検証用x509証明書の配布URL。
const firebaseCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// firebaseIssuerPrefix はFirebase IDトークンのissクレームのプレフィックス。
// 末尾にプロジェクトIDが続く。
const firebaseIssuerPrefix = "https://securetoken.google.com/"

// certsCacheTTL は取得した証明書セットを再利用する期間。
// 未知のkidに遭遇した場合はこの期間内でも再取得する。
const certsCacheTTL = time.Hour

// ErrFirebaseNotConfigured はプロジェクトID未設定のまま初期化した場合のエラー。
var ErrFirebaseNotConfigured = errors.New("FirebaseプロジェクトIDが設定されていません")

// FirebaseVerifier はFirebase Authenticationが発行したIDトークンを検証する。
// Googleのsecuretoken証明書セットに対するRS256署名検証と、
// 発行者・対象者・有効期限の検証を行う。
//
// 初期化は遅延実行かつ冪等で、同時の初回利用に対しても一度しか行われない。
// 設定不備（プロジェクトID未指定）の場合のみ初期化がエラーを返す。
type FirebaseVerifier struct {
	// projectID はFirebaseプロジェクトの識別子。audクレームの期待値でもある。
	projectID string
	// certsURL は証明書セットの取得先。テストで差し替える。
	certsURL string
	// httpClient は証明書取得に使用するHTTPクライアント。
	httpClient *http.Client

	// mu は以下のキャッシュ状態を保護する。
	mu sync.Mutex
	// initialized は初期化済みかどうか。
	initialized bool
	// certs はkid→RSA公開鍵のキャッシュ。
	certs map[string]*rsa.PublicKey
	// fetchedAt は証明書セットを最後に取得した時刻。
	fetchedAt time.Time
}

// NewFirebaseVerifier は新しいFirebase IDトークン検証器を生成する。
// この時点ではネットワークアクセスは発生しない。
func NewFirebaseVerifier(projectID string) *FirebaseVerifier {
	return &FirebaseVerifier{
		projectID: projectID,
		certsURL:  firebaseCertsURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Init は検証器を初期化する。複数回呼び出しても安全（冪等）。
// プロジェクトIDが未設定の場合のみErrFirebaseNotConfiguredを返す。
func (v *FirebaseVerifier) Init() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.initialized {
		return nil
	}
	if v.projectID == "" {
		return ErrFirebaseNotConfigured
	}
	v.initialized = true
	return nil
}

// Verify はFirebase IDトークンを検証し、プリンシパルを構築する。
// subクレームをユーザーID、name/emailクレームを表示名・メールアドレスとして
// 採用する。ロールはカスタムクレーム（role/RoleId/roles）から決定し、
// 存在しない場合は最小権限のRoleUserとなる。
func (v *FirebaseVerifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	if err := v.Init(); err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, errors.New("トークンヘッダーにkidがありません")
			}
			return v.publicKey(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(firebaseIssuerPrefix+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	userID := claims.Subject
	if userID == "" {
		return nil, fmt.Errorf("%w: subクレームがありません", ErrTokenInvalid)
	}

	return &Principal{
		UserID: userID,
		Name:   claims.Name,
		Email:  claims.Email,
		Role:   roleFromClaims(claims),
		Source: TokenSourceFirebase,
	}, nil
}

// publicKey は指定kidに対応するRSA公開鍵を返す。
// キャッシュに存在しないkidの場合、キャッシュが古ければ再取得を試みる。
func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.certs[kid]; ok {
		return key, nil
	}

	// 鍵のローテーション直後はキャッシュに新しいkidが存在しない
	if v.certs == nil || time.Since(v.fetchedAt) > certsCacheTTL {
		if err := v.fetchCertsLocked(ctx); err != nil {
			return nil, err
		}
		if key, ok := v.certs[kid]; ok {
			return key, nil
		}
	}
	return nil, fmt.Errorf("kid %q に対応する証明書が見つかりません", kid)
}

// fetchCertsLocked は証明書セットを取得しキャッシュを更新する。
// muを保持した状態で呼び出すこと。
func (v *FirebaseVerifier) fetchCertsLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return fmt.Errorf("証明書取得リクエストの作成に失敗: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("証明書セットの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("証明書セットの取得に失敗: status=%d", resp.StatusCode)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("証明書セットのパースに失敗: %w", err)
	}

	certs := make(map[string]*rsa.PublicKey, len(raw))
	for kid, pemCert := range raw {
		key, err := parseRSAPublicKeyFromCert(pemCert)
		if err != nil {
			return fmt.Errorf("kid %q の証明書のパースに失敗: %w", kid, err)
		}
		certs[kid] = key
	}

	v.certs = certs
	v.fetchedAt = time.Now()
	return nil
}

// parseRSAPublicKeyFromCert はPEM形式のx509証明書からRSA公開鍵を取り出す。
func parseRSAPublicKeyFromCert(pemCert string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemCert))
	if block == nil {
		return nil, errors.New("PEMブロックのデコードに失敗")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("x509証明書のパースに失敗: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("証明書の公開鍵がRSAではありません")
	}
	return key, nil
}
