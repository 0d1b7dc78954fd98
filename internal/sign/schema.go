package sign

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS signs (
    -- 標識の一意識別子
    id TEXT PRIMARY KEY,
    -- 標識の名称
    name TEXT NOT NULL,
    -- 標識の説明
    description TEXT NOT NULL DEFAULT '',
    -- カテゴリ（regulatory / warning / guide など）
    category TEXT NOT NULL,
    -- 標識画像のURL
    image_url TEXT NOT NULL DEFAULT '',
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- カテゴリでの絞り込みを高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_signs_category
    ON signs(category);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
