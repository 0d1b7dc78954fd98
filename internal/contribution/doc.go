// Package contribution は標識投稿サービスの内部実装を提供する。
//
// ユーザーが発見した標識の報告（位置情報・コメント付き）のCRUDと、
// スタッフによる承認・却下の状態遷移を担当する。状態が確定した際は
// 通知サービス経由で投稿者へ通知する。
package contribution
