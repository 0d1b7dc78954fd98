package payment

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS payments (
    -- 決済の一意識別子
    id TEXT PRIMARY KEY,
    -- 決済したユーザーのID
    user_id TEXT NOT NULL,
    -- 金額（最小通貨単位）
    amount INTEGER NOT NULL,
    -- 通貨コード（ISO 4217）
    currency TEXT NOT NULL,
    -- 決済の説明
    description TEXT NOT NULL DEFAULT '',
    -- 状態（created / completed / failed）
    status TEXT NOT NULL DEFAULT 'created',
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- ユーザーIDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_payments_user_id
    ON payments(user_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
