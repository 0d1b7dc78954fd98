package feedback

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS feedback (
    -- フィードバックの一意識別子
    id TEXT PRIMARY KEY,
    -- 投稿したユーザーのID
    user_id TEXT NOT NULL,
    -- 件名
    subject TEXT NOT NULL,
    -- 本文
    body TEXT NOT NULL,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- ユーザーIDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_feedback_user_id
    ON feedback(user_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
