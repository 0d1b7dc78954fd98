package vote

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS votes (
    -- 投票対象の投稿ID
    contribution_id TEXT NOT NULL,
    -- 投票したユーザーのID
    user_id TEXT NOT NULL,
    -- 投票の向き（up / down）
    direction TEXT NOT NULL,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 1ユーザーにつき1投稿あたり1票
    PRIMARY KEY (contribution_id, user_id)
);

-- 投稿ごとの集計を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_votes_contribution_id
    ON votes(contribution_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
