package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenSource はプリンシパルの元になったトークンの発行元を表す。
type TokenSource string

const (
	// TokenSourceLocal はゲートウェイ自身が署名したHMACトークンを表す。
	TokenSourceLocal TokenSource = "local"
	// TokenSourceFirebase はFirebase Authenticationが発行したIDトークンを表す。
	TokenSourceFirebase TokenSource = "firebase"
)

// Role はユーザーのロールを表す閉じた列挙型。
// 未知のロール値は検証段階でRoleUserに正規化されるため、
// 認可段階ではこの3値以外は存在しない。
type Role string

const (
	// RoleUser は一般ユーザー。最小権限のロール。
	RoleUser Role = "User"
	// RoleStaff は運営スタッフ。標識カタログや投稿の管理を行う。
	RoleStaff Role = "Staff"
	// RoleAdmin は管理者。全リソースへのアクセス権を持つ。
	RoleAdmin Role = "Admin"
)

// ParseRole は文字列をRoleに変換する。大文字小文字は区別しない。
// 未知の値や空文字列の場合はRoleUserとfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "staff":
		return RoleStaff, true
	case "admin":
		return RoleAdmin, true
	default:
		return RoleUser, false
	}
}

// Principal は検証済みトークンから構築された認証済みユーザーを表す。
// リクエストごとに構築され、リクエスト終了時に破棄される。永続化しない。
type Principal struct {
	// UserID はユーザーの一意識別子（トークンのsubject）。
	UserID string
	// Name はユーザーの表示名。
	Name string
	// Email はユーザーのメールアドレス。
	Email string
	// Role はユーザーのロール。
	Role Role
	// Source はトークンの発行元。
	Source TokenSource
}

// contextKeyPrincipal はGinコンテキストにプリンシパルを格納するためのキー。
const contextKeyPrincipal = "principal"

// SetPrincipal はGinコンテキストにプリンシパルを設定する。
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(contextKeyPrincipal, p)
}

// GetPrincipal はGinコンテキストからプリンシパルを取得する。
// 認証ミドルウェアが事前に適用されていない場合はfalseを返す。
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}
