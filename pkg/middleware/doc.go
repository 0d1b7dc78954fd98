// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 相関ID付与、アクセスログ記録、JWT/Firebase認証、ロール認可、
// レート制限、CORS設定、パニックリカバリなど、ゲートウェイと
// 内部サービスで共通して使用するミドルウェアを含む。
package middleware
