package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository は SQLite を使用したユーザーリポジトリです。
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository は SQLiteRepository を作成します。
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create はユーザーを保存します。
func (r *SQLiteRepository) Create(ctx context.Context, user *User) (*User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.CreatedAt.Unix(),
	)
	if err != nil {
		if vErr := sqliteUniqueViolation(err); vErr != nil {
			return nil, vErr
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.ID = id
	return user, nil
}

// FindByUsername はユーザー名でユーザーを取得します。
func (r *SQLiteRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	user := &User{}
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return user, nil
}

// sqliteUniqueViolation は UNIQUE 制約違反を ValidationError に変換します。
// メッセージ例: "UNIQUE constraint failed: users.email"
func sqliteUniqueViolation(err error) *ValidationError {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return nil
	}
	code := sqlErr.Code()
	unique := code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqlErr.Error(), "UNIQUE"))
	if !unique {
		return nil
	}
	return uniqueViolation(fieldFromMessage(sqlErr.Error()))
}

// fieldFromMessage は制約名やエラーメッセージから対象カラムを推定します。
func fieldFromMessage(msg string) string {
	if strings.Contains(msg, "email") {
		return "email"
	}
	return "username"
}

// compile-time interface check
var _ Repository = (*SQLiteRepository)(nil)
