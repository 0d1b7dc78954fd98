package sign

import (
	"context"
	"database/sql"
)

// Queries は標識テーブルへのクエリ実行オブジェクト。
type Queries struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Sign は標識テーブルの1行を表す。
type Sign struct {
	// ID は標識の一意識別子。
	ID string
	// Name は標識の名称。
	Name string
	// Description は標識の説明。
	Description string
	// Category はカテゴリ。
	Category string
	// ImageURL は標識画像のURL。
	ImageURL string
	// CreatedAt は作成日時。
	CreatedAt string
	// UpdatedAt は更新日時。
	UpdatedAt string
}

// CreateSignParams は標識作成のパラメータ。
type CreateSignParams struct {
	// ID は標識の一意識別子。
	ID string
	// Name は標識の名称。
	Name string
	// Description は標識の説明。
	Description string
	// Category はカテゴリ。
	Category string
	// ImageURL は標識画像のURL。
	ImageURL string
}

// CreateSign は新しい標識を作成する。
func (q *Queries) CreateSign(ctx context.Context, params CreateSignParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO signs (id, name, description, category, image_url) VALUES (?, ?, ?, ?, ?)`,
		params.ID, params.Name, params.Description, params.Category, params.ImageURL,
	)
	return err
}

// GetSignByID はIDで標識を取得する。
func (q *Queries) GetSignByID(ctx context.Context, id string) (Sign, error) {
	var s Sign
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, description, category, image_url, created_at, updated_at FROM signs WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.Category, &s.ImageURL, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// ListSigns は標識を名称順で取得する。categoryが空でない場合は絞り込む。
func (q *Queries) ListSigns(ctx context.Context, category string) ([]Sign, error) {
	query := `SELECT id, name, description, category, image_url, created_at, updated_at FROM signs`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signs []Sign
	for rows.Next() {
		var s Sign
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Category, &s.ImageURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		signs = append(signs, s)
	}
	return signs, rows.Err()
}

// UpdateSign は標識の属性を更新する。
func (q *Queries) UpdateSign(ctx context.Context, params CreateSignParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE signs SET name = ?, description = ?, category = ?, image_url = ?, updated_at = datetime('now') WHERE id = ?`,
		params.Name, params.Description, params.Category, params.ImageURL, params.ID,
	)
	return err
}

// DeleteSign は標識を削除する。
func (q *Queries) DeleteSign(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM signs WHERE id = ?`, id)
	return err
}
