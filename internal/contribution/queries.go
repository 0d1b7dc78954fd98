package contribution

import (
	"context"
	"database/sql"
)

// 投稿の状態。
const (
	// StatusPending は審査待ちを表す。
	StatusPending = "pending"
	// StatusApproved は承認済みを表す。
	StatusApproved = "approved"
	// StatusRejected は却下を表す。
	StatusRejected = "rejected"
)

// Queries は投稿テーブルへのクエリ実行オブジェクト。
type Queries struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Contribution は投稿テーブルの1行を表す。
type Contribution struct {
	// ID は投稿の一意識別子。
	ID string
	// UserID は投稿したユーザーのID。
	UserID string
	// SignID は報告対象の標識ID。
	SignID string
	// Latitude は緯度。
	Latitude float64
	// Longitude は経度。
	Longitude float64
	// Comment は投稿者のコメント。
	Comment string
	// Status は状態。
	Status string
	// CreatedAt は作成日時。
	CreatedAt string
	// UpdatedAt は更新日時。
	UpdatedAt string
}

// CreateContributionParams は投稿作成のパラメータ。
type CreateContributionParams struct {
	// ID は投稿の一意識別子。
	ID string
	// UserID は投稿したユーザーのID。
	UserID string
	// SignID は報告対象の標識ID。
	SignID string
	// Latitude は緯度。
	Latitude float64
	// Longitude は経度。
	Longitude float64
	// Comment は投稿者のコメント。
	Comment string
}

// CreateContribution は新しい投稿を作成する。状態はpendingで開始する。
func (q *Queries) CreateContribution(ctx context.Context, params CreateContributionParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO contributions (id, user_id, sign_id, latitude, longitude, comment, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		params.ID, params.UserID, params.SignID, params.Latitude, params.Longitude, params.Comment, StatusPending,
	)
	return err
}

// GetContributionByID はIDで投稿を取得する。
func (q *Queries) GetContributionByID(ctx context.Context, id string) (Contribution, error) {
	var co Contribution
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, sign_id, latitude, longitude, comment, status, created_at, updated_at
		 FROM contributions WHERE id = ?`,
		id,
	).Scan(&co.ID, &co.UserID, &co.SignID, &co.Latitude, &co.Longitude, &co.Comment, &co.Status, &co.CreatedAt, &co.UpdatedAt)
	return co, err
}

// ListContributions は投稿を作成日時の降順で取得する。
// statusが空でない場合は状態で絞り込む。
func (q *Queries) ListContributions(ctx context.Context, status string) ([]Contribution, error) {
	query := `SELECT id, user_id, sign_id, latitude, longitude, comment, status, created_at, updated_at FROM contributions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contributions []Contribution
	for rows.Next() {
		var co Contribution
		if err := rows.Scan(&co.ID, &co.UserID, &co.SignID, &co.Latitude, &co.Longitude, &co.Comment, &co.Status, &co.CreatedAt, &co.UpdatedAt); err != nil {
			return nil, err
		}
		contributions = append(contributions, co)
	}
	return contributions, rows.Err()
}

// UpdateContributionStatus は投稿の状態を更新する。
func (q *Queries) UpdateContributionStatus(ctx context.Context, id, status string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE contributions SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	return err
}

// DeleteContribution は投稿を削除する。
func (q *Queries) DeleteContribution(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM contributions WHERE id = ?`, id)
	return err
}
