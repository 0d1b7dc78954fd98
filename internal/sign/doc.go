// Package sign は交通標識カタログサービスの内部実装を提供する。
//
// 標識マスタ（名称・説明・カテゴリ・画像URL）のCRUDと
// カテゴリによる絞り込み検索を担当する。閲覧は誰でも可能だが、
// カタログの編集はゲートウェイがスタッフ以上に制限する。
package sign
