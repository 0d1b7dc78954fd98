// Package vote は投票サービスの内部実装を提供する。
//
// 投稿に対する賛成・反対の投票を管理する。1ユーザーにつき1投稿あたり
// 1票まで。再投票は票の置き換えとして扱い、取り消しも可能。
// 投稿ごとの賛否集計を提供する。
package vote
