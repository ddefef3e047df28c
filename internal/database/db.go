// Package database はデータベース接続とマイグレーション管理を提供します。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/yourusername/login-portal/internal/users"
)

// DB は接続済みのデータベースと、その方言を保持します。
type DB struct {
	SQL     *sql.DB
	Dialect goose.Dialect
}

// Open は URL に応じて SQLite または PostgreSQL に接続します。
// postgres:// / postgresql:// で始まる場合は PostgreSQL、それ以外は SQLite のファイルパス（DSN）として扱います。
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	driver, dialect := "sqlite", goose.DialectSQLite3
	if isPostgresURL(databaseURL) {
		driver, dialect = "pgx", goose.DialectPostgres
	}

	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == goose.DialectSQLite3 {
		// 書き込みを直列化し、:memory: でも単一のDBを共有する
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return &DB{SQL: db, Dialect: dialect}, nil
}

// Close は接続を閉じます。
func (d *DB) Close() error {
	return d.SQL.Close()
}

// UserRepository は方言に対応したユーザーリポジトリを返します。
func (d *DB) UserRepository() users.Repository {
	if d.Dialect == goose.DialectPostgres {
		return users.NewPostgresRepository(d.SQL)
	}
	return users.NewSQLiteRepository(d.SQL)
}

func isPostgresURL(u string) bool {
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}
