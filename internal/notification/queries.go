package notification

import (
	"context"
	"database/sql"
)

// Queries は通知テーブルへのクエリ実行オブジェクト。
type Queries struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Notification は通知テーブルの1行を表す。
type Notification struct {
	// ID は通知の一意識別子。
	ID string
	// UserID は通知先のユーザーID。
	UserID string
	// Title は通知のタイトル。
	Title string
	// Message は通知メッセージ。
	Message string
	// IsRead は通知の既読状態（0=未読、1=既読）。
	IsRead int64
	// CreatedAt は通知の作成日時。
	CreatedAt string
}

// CreateNotificationParams は通知作成のパラメータ。
type CreateNotificationParams struct {
	// ID は通知の一意識別子。
	ID string
	// UserID は通知先のユーザーID。
	UserID string
	// Title は通知のタイトル。
	Title string
	// Message は通知メッセージ。
	Message string
}

// CreateNotification は新しい通知を作成する。
func (q *Queries) CreateNotification(ctx context.Context, params CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, message) VALUES (?, ?, ?, ?)`,
		params.ID, params.UserID, params.Title, params.Message,
	)
	return err
}

// GetNotificationByID はIDで通知を取得する。
func (q *Queries) GetNotificationByID(ctx context.Context, id string) (Notification, error) {
	var n Notification
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, message, is_read, created_at FROM notifications WHERE id = ?`,
		id,
	).Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt)
	return n, err
}

// ListNotificationsByUserID はユーザーの通知を作成日時の降順で取得する。
func (q *Queries) ListNotificationsByUserID(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, title, message, is_read, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return scanNotifications(rows)
}

// ListUnreadNotifications はユーザーの未読通知を作成日時の降順で取得する。
func (q *Queries) ListUnreadNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, title, message, is_read, created_at
		 FROM notifications WHERE user_id = ? AND is_read = 0 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return scanNotifications(rows)
}

// MarkAsRead は通知を既読にする。
func (q *Queries) MarkAsRead(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	return err
}

// MarkAllAsRead はユーザーの全通知を既読にする。
func (q *Queries) MarkAllAsRead(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ?`, userID)
	return err
}

// scanNotifications は結果セットをNotificationスライスに変換する。
func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
