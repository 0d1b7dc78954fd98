package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン種別を表すtoken_typeクレームの値。
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// 資格情報検証の失敗を表すセンチネルエラー。
var (
	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("トークンの有効期限が切れています")
	// ErrTokenInvalid は署名・発行者・対象者の検証失敗を表す。
	ErrTokenInvalid = errors.New("トークンが無効です")
	// ErrTokenWrongType はアクセストークンとリフレッシュトークンの取り違えを表す。
	ErrTokenWrongType = errors.New("トークン種別が一致しません")
)

// Claims はゲートウェイが署名するJWTトークンのクレーム（ペイロード）を表す。
// ロールは互換性のため複数のクレーム表現を許容する。検証時はいずれか一つでも
// 解釈できれば採用する（和集合マッチ）。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Name はユーザーの表示名。
	Name string `json:"name,omitempty"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
	// Role はユーザーのロール。
	Role string `json:"role,omitempty"`
	// RoleID は旧クライアント互換のロールクレーム。
	RoleID string `json:"RoleId,omitempty"`
	// Roles は標準的なロール配列クレーム。
	Roles []string `json:"roles,omitempty"`
	// TokenType はトークン種別（access / refresh）。
	TokenType string `json:"token_type"`
}

// roleFromClaims はクレームからロールを決定する。
// role・RoleId・roles の3表現を順に確認し、最初に解釈できた値を採用する。
// どのクレームも解釈できない場合は最小権限のRoleUserに落とす。
func roleFromClaims(claims *Claims) Role {
	candidates := []string{claims.Role, claims.RoleID}
	candidates = append(candidates, claims.Roles...)
	for _, s := range candidates {
		if r, ok := ParseRole(s); ok {
			return r
		}
	}
	return RoleUser
}

// TokenIssuer はアクセストークンとリフレッシュトークンを発行する。
// ゲートウェイのログイン・リフレッシュエンドポイントが使用する。
type TokenIssuer struct {
	// Secret はHMAC-SHA256署名用の秘密鍵。
	Secret string
	// Issuer はissクレームに設定する発行者名。
	Issuer string
	// Audience はaudクレームに設定する対象者名。
	Audience string
	// AccessTTL はアクセストークンの有効期間。
	AccessTTL time.Duration
	// RefreshTTL はリフレッシュトークンの有効期間。
	RefreshTTL time.Duration
}

// IssueAccessToken はプリンシパルからアクセストークンを発行する。
func (i *TokenIssuer) IssueAccessToken(p *Principal) (string, error) {
	return i.issue(p, tokenTypeAccess, i.AccessTTL)
}

// IssueRefreshToken はプリンシパルからリフレッシュトークンを発行する。
func (i *TokenIssuer) IssueRefreshToken(p *Principal) (string, error) {
	return i.issue(p, tokenTypeRefresh, i.RefreshTTL)
}

// issue は指定種別・有効期間のトークンを発行する共通処理。
func (i *TokenIssuer) issue(p *Principal, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    i.Issuer,
			Audience:  jwt.ClaimStrings{i.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:    p.UserID,
		Name:      p.Name,
		Email:     p.Email,
		Role:      string(p.Role),
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.Secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// LocalVerifier はゲートウェイ自身が署名したHMACトークンを検証する。
// 署名・発行者・対象者・有効期限のすべてが妥当な場合のみ受理する。
// 有効期限の比較に時計の許容誤差は設けない。
type LocalVerifier struct {
	// Secret はHMAC-SHA256署名用の秘密鍵。
	Secret string
	// Issuer は許可する発行者名。
	Issuer string
	// Audience は許可する対象者名。
	Audience string
}

// Verify はアクセストークンを検証し、プリンシパルを構築する。
// リフレッシュトークンを渡した場合はErrTokenWrongTypeを返す。
func (v *LocalVerifier) Verify(_ context.Context, tokenString string) (*Principal, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrTokenWrongType
	}
	return v.principal(claims), nil
}

// VerifyRefresh はリフレッシュトークンを検証し、プリンシパルを構築する。
// 有効期限の検証は省略しない。期限切れの場合はErrTokenExpiredを返す。
func (v *LocalVerifier) VerifyRefresh(tokenString string) (*Principal, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, ErrTokenWrongType
	}
	return v.principal(claims), nil
}

// parse はトークンをパースし、署名・発行者・対象者・有効期限を検証する。
func (v *LocalVerifier) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) {
			return []byte(v.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.Issuer),
		jwt.WithAudience(v.Audience),
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
	return claims, nil
}

// principal は検証済みクレームからプリンシパルを構築する。
func (v *LocalVerifier) principal(claims *Claims) *Principal {
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	return &Principal{
		UserID: userID,
		Name:   claims.Name,
		Email:  claims.Email,
		Role:   roleFromClaims(claims),
		Source: TokenSourceLocal,
	}
}
