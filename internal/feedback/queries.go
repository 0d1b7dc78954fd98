package feedback

import (
	"context"
	"database/sql"
)

// Queries はフィードバックテーブルへのクエリ実行オブジェクト。
type Queries struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Feedback はフィードバックテーブルの1行を表す。
type Feedback struct {
	// ID はフィードバックの一意識別子。
	ID string
	// UserID は投稿したユーザーのID。
	UserID string
	// Subject は件名。
	Subject string
	// Body は本文。
	Body string
	// CreatedAt は作成日時。
	CreatedAt string
}

// CreateFeedback は新しいフィードバックを作成する。
func (q *Queries) CreateFeedback(ctx context.Context, id, userID, subject, body string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO feedback (id, user_id, subject, body) VALUES (?, ?, ?, ?)`,
		id, userID, subject, body,
	)
	return err
}

// GetFeedbackByID はIDでフィードバックを取得する。
func (q *Queries) GetFeedbackByID(ctx context.Context, id string) (Feedback, error) {
	var f Feedback
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, subject, body, created_at FROM feedback WHERE id = ?`,
		id,
	).Scan(&f.ID, &f.UserID, &f.Subject, &f.Body, &f.CreatedAt)
	return f, err
}

// ListFeedback は全フィードバックを作成日時の降順で取得する。
func (q *Queries) ListFeedback(ctx context.Context) ([]Feedback, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, subject, body, created_at FROM feedback ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feedbacks []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.UserID, &f.Subject, &f.Body, &f.CreatedAt); err != nil {
			return nil, err
		}
		feedbacks = append(feedbacks, f)
	}
	return feedbacks, rows.Err()
}

// DeleteFeedback はフィードバックを削除する。
func (q *Queries) DeleteFeedback(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = ?`, id)
	return err
}
