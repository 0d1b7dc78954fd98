package vote

import (
	"context"
	"database/sql"
)

// 投票の向き。
const (
	// DirectionUp は賛成票を表す。
	DirectionUp = "up"
	// DirectionDown は反対票を表す。
	DirectionDown = "down"
)

// Queries は投票テーブルへのクエリ実行オブジェクト。
type Queries struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Tally は投稿ごとの賛否集計。
type Tally struct {
	// ContributionID は集計対象の投稿ID。
	ContributionID string
	// Up は賛成票数。
	Up int64
	// Down は反対票数。
	Down int64
}

// CastVote は投票を登録する。既存の票がある場合は置き換える。
func (q *Queries) CastVote(ctx context.Context, contributionID, userID, direction string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO votes (contribution_id, user_id, direction) VALUES (?, ?, ?)
		 ON CONFLICT (contribution_id, user_id)
		 DO UPDATE SET direction = excluded.direction, created_at = datetime('now')`,
		contributionID, userID, direction,
	)
	return err
}

// RetractVote は投票を取り消す。削除した行数を返す。
func (q *Queries) RetractVote(ctx context.Context, contributionID, userID string) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM votes WHERE contribution_id = ? AND user_id = ?`,
		contributionID, userID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetTally は投稿の賛否集計を取得する。票が無い場合はゼロ集計を返す。
func (q *Queries) GetTally(ctx context.Context, contributionID string) (Tally, error) {
	tally := Tally{ContributionID: contributionID}
	err := q.db.QueryRowContext(ctx,
		`SELECT
		    COUNT(CASE WHEN direction = ? THEN 1 END),
		    COUNT(CASE WHEN direction = ? THEN 1 END)
		 FROM votes WHERE contribution_id = ?`,
		DirectionUp, DirectionDown, contributionID,
	).Scan(&tally.Up, &tally.Down)
	return tally, err
}

// GetVote はユーザーの票を取得する。未投票の場合はsql.ErrNoRowsを返す。
func (q *Queries) GetVote(ctx context.Context, contributionID, userID string) (string, error) {
	var direction string
	err := q.db.QueryRowContext(ctx,
		`SELECT direction FROM votes WHERE contribution_id = ? AND user_id = ?`,
		contributionID, userID,
	).Scan(&direction)
	return direction, err
}
