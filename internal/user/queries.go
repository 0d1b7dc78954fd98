package user

import (
	"context"
	"database/sql"
)

// Queries はユーザーテーブルへのクエリ実行オブジェクト。
type Queries struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// User はユーザーテーブルの1行を表す。
type User struct {
	// ID はユーザーの一意識別子。
	ID string
	// Email はメールアドレス。
	Email string
	// DisplayName は表示名。
	DisplayName string
	// Role はロール。
	Role string
	// PasswordHash はbcryptハッシュ。
	PasswordHash string
	// CreatedAt は作成日時。
	CreatedAt string
	// UpdatedAt は更新日時。
	UpdatedAt string
}

// CreateUserParams はユーザー作成のパラメータ。
type CreateUserParams struct {
	// ID はユーザーの一意識別子。
	ID string
	// Email はメールアドレス。
	Email string
	// DisplayName は表示名。
	DisplayName string
	// Role はロール。
	Role string
	// PasswordHash はbcryptハッシュ。
	PasswordHash string
}

// CreateUser は新しいユーザーを作成する。
func (q *Queries) CreateUser(ctx context.Context, params CreateUserParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, role, password_hash) VALUES (?, ?, ?, ?, ?)`,
		params.ID, params.Email, params.DisplayName, params.Role, params.PasswordHash,
	)
	return err
}

// GetUserByID はIDでユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	return q.scanUser(q.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, role, password_hash, created_at, updated_at FROM users WHERE id = ?`,
		id,
	))
}

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return q.scanUser(q.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, role, password_hash, created_at, updated_at FROM users WHERE email = ?`,
		email,
	))
}

// ListUsers は全ユーザーを作成日時の降順で取得する。
func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, email, display_name, role, password_hash, created_at, updated_at FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserProfile は表示名を更新する。
func (q *Queries) UpdateUserProfile(ctx context.Context, id, displayName string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET display_name = ?, updated_at = datetime('now') WHERE id = ?`,
		displayName, id,
	)
	return err
}

// UpdateUserPassword はパスワードハッシュを更新する。
func (q *Queries) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = datetime('now') WHERE id = ?`,
		passwordHash, id,
	)
	return err
}

// UpdateUserRole はロールを更新する。
func (q *Queries) UpdateUserRole(ctx context.Context, id, role string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = datetime('now') WHERE id = ?`,
		role, id,
	)
	return err
}

// DeleteUser はユーザーを削除する。
func (q *Queries) DeleteUser(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

// scanUser は1行をUser構造体にスキャンする。
func (q *Queries) scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
