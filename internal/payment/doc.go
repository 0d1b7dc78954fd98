// Package payment は決済サービスの内部実装を提供する。
//
// 寄付・プレミアム機能の決済レコードを管理する。決済の作成、
// 本人または管理者による参照、管理者による状態遷移を担当する。
// 外部決済プロバイダとの連携は状態遷移のフックとして表現する。
package payment
