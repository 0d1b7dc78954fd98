// Package feedback はフィードバックサービスの内部実装を提供する。
//
// アプリへの意見・不具合報告の受付と、スタッフによる閲覧・整理を
// 担当する。投稿は認証済みユーザーなら誰でも行える。
package feedback
