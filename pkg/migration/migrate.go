// Package migration はSQLiteデータベースのスキーマ移行を管理する。
// embed.FSに含まれるSQLファイルを番号順に適用し、適用済みバージョンを
// schema_migrationsテーブルで追跡する。
package migration

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Run はディレクトリ内の未適用マイグレーションを番号順に適用する。
// ファイル名は 000001_create_users.up.sql の形式で、番号の昇順に実行される。
// 適用済みのバージョンはスキップされるため、起動のたびに呼んでも安全である。
func Run(db *sql.DB, fsys fs.FS, dir string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	steps, err := pendingSteps(fsys, dir, applied)
	if err != nil {
		return fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	for _, step := range steps {
		if err := apply(db, fsys, step); err != nil {
			return fmt.Errorf("マイグレーション %06d の適用に失敗: %w", step.version, err)
		}
		log.Printf("[Migration] %06d_%s を適用しました", step.version, step.name)
	}
	return nil
}

// step は1つのマイグレーションファイルを表す。
type step struct {
	version int
	name    string
	path    string
}

// appliedVersions はschema_migrationsから適用済みバージョンの集合を読み出す。
func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// pendingSteps は未適用のup.sqlファイルをバージョン昇順で返す。
// 番号を持たないファイル名は対象外として無視する。
func pendingSteps(fsys fs.FS, dir string, applied map[int]bool) ([]step, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, err
	}

	steps := make([]step, 0, len(matches))
	for _, m := range matches {
		base := path.Base(m)
		numStr, rest, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		if applied[version] {
			continue
		}
		steps = append(steps, step{
			version: version,
			name:    strings.TrimSuffix(rest, ".up.sql"),
			path:    m,
		})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// apply は1つのマイグレーションをトランザクション内で実行し、バージョンを記録する。
func apply(db *sql.DB, fsys fs.FS, s step) error {
	content, err := fs.ReadFile(fsys, s.path)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", s.version); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
