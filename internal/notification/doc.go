// Package notification は通知サービスの内部実装を提供する。
//
// ユーザー宛て通知の保存・一覧取得・既読管理を担当する。
// 通知の作成は内部APIとして公開し、投稿の承認・却下など
// 他サービスのイベントから呼び出される。
package notification
