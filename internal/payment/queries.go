package payment

import (
	"context"
	"database/sql"
)

// 決済の状態。
const (
	// StatusCreated は作成済み（未処理）を表す。
	StatusCreated = "created"
	// StatusCompleted は完了を表す。
	StatusCompleted = "completed"
	// StatusFailed は失敗を表す。
	StatusFailed = "failed"
)

// Queries は決済テーブルへのクエリ実行オブジェクト。
type Queries struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Payment は決済テーブルの1行を表す。
type Payment struct {
	// ID は決済の一意識別子。
	ID string
	// UserID は決済したユーザーのID。
	UserID string
	// Amount は金額（最小通貨単位）。
	Amount int64
	// Currency は通貨コード。
	Currency string
	// Description は決済の説明。
	Description string
	// Status は状態。
	Status string
	// CreatedAt は作成日時。
	CreatedAt string
	// UpdatedAt は更新日時。
	UpdatedAt string
}

// CreatePaymentParams は決済作成のパラメータ。
type CreatePaymentParams struct {
	// ID は決済の一意識別子。
	ID string
	// UserID は決済したユーザーのID。
	UserID string
	// Amount は金額（最小通貨単位）。
	Amount int64
	// Currency は通貨コード。
	Currency string
	// Description は決済の説明。
	Description string
}

// CreatePayment は新しい決済レコードを作成する。状態はcreatedで開始する。
func (q *Queries) CreatePayment(ctx context.Context, params CreatePaymentParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, amount, currency, description, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		params.ID, params.UserID, params.Amount, params.Currency, params.Description, StatusCreated,
	)
	return err
}

// GetPaymentByID はIDで決済を取得する。
func (q *Queries) GetPaymentByID(ctx context.Context, id string) (Payment, error) {
	var p Payment
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, currency, description, status, created_at, updated_at
		 FROM payments WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListPaymentsByUser はユーザーの決済を作成日時の降順で取得する。
func (q *Queries) ListPaymentsByUser(ctx context.Context, userID string) ([]Payment, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, amount, currency, description, status, created_at, updated_at
		 FROM payments WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return scanPayments(rows)
}

// ListAllPayments は全決済を作成日時の降順で取得する。管理者向け。
func (q *Queries) ListAllPayments(ctx context.Context) ([]Payment, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, amount, currency, description, status, created_at, updated_at
		 FROM payments ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	return scanPayments(rows)
}

// UpdatePaymentStatus は決済の状態を更新する。
func (q *Queries) UpdatePaymentStatus(ctx context.Context, id, status string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	return err
}

// scanPayments は結果セットをPaymentスライスに変換する。
func scanPayments(rows *sql.Rows) ([]Payment, error) {
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
