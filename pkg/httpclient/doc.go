// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// Gatewayからユーザーサービスへの資格情報検証、投稿サービスから
// 通知サービスへの通知送信など、サービス間の通信パターンを統一する。
// 相関IDはcontext.Context経由で受け取り、送信ヘッダーへ伝播する。
package httpclient
