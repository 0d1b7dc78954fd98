// Package user はユーザーサービスの内部実装を提供する。
//
// ユーザープロファイルのCRUDと資格情報（bcryptハッシュ）の検証を担当する。
// 資格情報検証エンドポイントはゲートウェイのログイン処理からのみ
// 呼び出される内部APIである。ユーザーの身元はゲートウェイが付与する
// X-User-*ヘッダーから取得する。
package user
