package contribution

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS contributions (
    -- 投稿の一意識別子
    id TEXT PRIMARY KEY,
    -- 投稿したユーザーのID
    user_id TEXT NOT NULL,
    -- 報告対象の標識ID
    sign_id TEXT NOT NULL,
    -- 緯度
    latitude REAL NOT NULL,
    -- 経度
    longitude REAL NOT NULL,
    -- 投稿者のコメント
    comment TEXT NOT NULL DEFAULT '',
    -- 状態（pending / approved / rejected）
    status TEXT NOT NULL DEFAULT 'pending',
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- ユーザーIDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_contributions_user_id
    ON contributions(user_id);

-- 状態での絞り込みを高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_contributions_status
    ON contributions(status);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
