package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/signpost/pkg/middleware"
)

// 内部サービスの論理サービス名。レジストリとルーティングのキーとして使用する。
const (
	// ServiceUser はユーザーサービス。
	ServiceUser = "UserService"
	// ServiceTrafficSign は交通標識カタログサービス。
	ServiceTrafficSign = "TrafficSignService"
	// ServiceContribution は標識投稿サービス。
	ServiceContribution = "ContributionService"
	// ServiceVoting は投票サービス。
	ServiceVoting = "VotingService"
	// ServicePayment は決済サービス。
	ServicePayment = "PaymentService"
	// ServiceNotification は通知サービス。
	ServiceNotification = "NotificationService"
	// ServiceFeedback はフィードバックサービス。
	ServiceFeedback = "FeedbackService"
)

// serviceEnvKeys は論理サービス名→ベースURL上書き用の環境変数名。
var serviceEnvKeys = map[string]string{
	ServiceUser:         "USER_SERVICE_URL",
	ServiceTrafficSign:  "SIGN_SERVICE_URL",
	ServiceContribution: "CONTRIBUTION_SERVICE_URL",
	ServiceVoting:       "VOTE_SERVICE_URL",
	ServicePayment:      "PAYMENT_SERVICE_URL",
	ServiceNotification: "NOTIFICATION_SERVICE_URL",
	ServiceFeedback:     "FEEDBACK_SERVICE_URL",
}

// Config はゲートウェイの設定。YAMLファイルと環境変数から読み込む。
type Config struct {
	// Port はゲートウェイのリッスンポート。
	Port string `yaml:"port"`
	// Services は論理サービス名→ベースURLのテーブル。
	// 部分的な設定はデフォルト値とマージされるため、
	// 設定漏れによってサービスがルーティング不能になることはない。
	Services map[string]string `yaml:"services"`
	// JWT はローカル署名トークンの設定。
	JWT JWTConfig `yaml:"jwt"`
	// Firebase は外部IDプロバイダ検証の設定。
	Firebase FirebaseConfig `yaml:"firebase"`
	// CORS はクロスオリジン設定。
	CORS CORSConfig `yaml:"cors"`
	// RateLimits はレート制限ルールのリスト。定義順に評価される。
	RateLimits []middleware.RateLimitRule `yaml:"rate_limits"`
}

// JWTConfig はローカルHMAC署名トークンの設定。
type JWTConfig struct {
	// Secret はHMAC-SHA256署名用の秘密鍵。
	Secret string `yaml:"secret"`
	// Issuer はissクレームの発行者名。
	Issuer string `yaml:"issuer"`
	// Audience はaudクレームの対象者名。
	Audience string `yaml:"audience"`
	// AccessTokenMinutes はアクセストークンの有効期間（分）。
	AccessTokenMinutes int `yaml:"access_token_minutes"`
	// RefreshTokenMinutes はリフレッシュトークンの有効期間（分）。
	RefreshTokenMinutes int `yaml:"refresh_token_minutes"`
}

// FirebaseConfig は外部IDプロバイダ（Firebase Authentication）検証の設定。
type FirebaseConfig struct {
	// Enabled はFirebase IDトークンの検証を有効にするかどうか。
	Enabled bool `yaml:"enabled"`
	// ProjectID はFirebaseプロジェクトの識別子。
	ProjectID string `yaml:"project_id"`
	// Primary がtrueの場合、Firebase検証をローカル検証より先に試行する。
	Primary bool `yaml:"primary"`
}

// CORSConfig はクロスオリジンリクエストの設定。
type CORSConfig struct {
	// AllowedOrigins は許可するオリジンのリスト。
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig は全サービスのデフォルトURLを含む既定の設定を返す。
func DefaultConfig() Config {
	return Config{
		Port: "8080",
		Services: map[string]string{
			ServiceUser:         "http://localhost:8081",
			ServiceTrafficSign:  "http://localhost:8082",
			ServiceContribution: "http://localhost:8083",
			ServiceVoting:       "http://localhost:8084",
			ServicePayment:      "http://localhost:8085",
			ServiceNotification: "http://localhost:8086",
			ServiceFeedback:     "http://localhost:8087",
		},
		JWT: JWTConfig{
			Secret:              "dev-secret-key",
			Issuer:              "signpost-gateway",
			Audience:            "signpost",
			AccessTokenMinutes:  60,
			RefreshTokenMinutes: 60 * 24 * 14,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadConfig は設定を読み込む。優先順位は 環境変数 > YAMLファイル > デフォルト値。
// pathが空文字列の場合はYAMLの読み込みをスキップする。
// YAMLのservicesテーブルはデフォルト値とマージされる（上書きのみ、削除なし）。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	overlayEnv(&cfg)
	return cfg, nil
}

// overlayFile はYAMLファイルの内容を設定に上書きする。
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("設定ファイルのパースに失敗: %w", err)
	}

	if file.Port != "" {
		cfg.Port = file.Port
	}
	for name, url := range file.Services {
		if url != "" {
			cfg.Services[name] = url
		}
	}
	if file.JWT.Secret != "" {
		cfg.JWT.Secret = file.JWT.Secret
	}
	if file.JWT.Issuer != "" {
		cfg.JWT.Issuer = file.JWT.Issuer
	}
	if file.JWT.Audience != "" {
		cfg.JWT.Audience = file.JWT.Audience
	}
	if file.JWT.AccessTokenMinutes > 0 {
		cfg.JWT.AccessTokenMinutes = file.JWT.AccessTokenMinutes
	}
	if file.JWT.RefreshTokenMinutes > 0 {
		cfg.JWT.RefreshTokenMinutes = file.JWT.RefreshTokenMinutes
	}
	cfg.Firebase = file.Firebase
	if len(file.CORS.AllowedOrigins) > 0 {
		cfg.CORS.AllowedOrigins = file.CORS.AllowedOrigins
	}
	if len(file.RateLimits) > 0 {
		cfg.RateLimits = file.RateLimits
	}
	return nil
}

// overlayEnv は環境変数の内容を設定に上書きする。
func overlayEnv(cfg *Config) {
	cfg.Port = getEnvOr("PORT", cfg.Port)
	cfg.JWT.Secret = getEnvOr("JWT_SECRET", cfg.JWT.Secret)
	cfg.Firebase.ProjectID = getEnvOr("FIREBASE_PROJECT_ID", cfg.Firebase.ProjectID)
	if os.Getenv("FIREBASE_ENABLED") == "true" {
		cfg.Firebase.Enabled = true
	}
	for name, envKey := range serviceEnvKeys {
		cfg.Services[name] = getEnvOr(envKey, cfg.Services[name])
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
