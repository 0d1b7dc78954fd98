// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。受信したリクエストに相関IDを付与し、JWT/Firebaseトークンを
// 検証してプリンシパルを構築し、ルートごとのロール許可リストを強制した上で、
// ユーザー情報をX-User-*ヘッダーとして内部サービスへ伝播・転送する。
// 内部サービスのベースURLは実行時に差し替え可能なレジストリが解決する。
package gateway
