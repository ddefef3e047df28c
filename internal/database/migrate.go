package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// newProvider は方言に対応した埋め込みマイグレーションの goose Provider を作成します。
func (d *DB) newProvider() (*goose.Provider, error) {
	dir := "migrations/sqlite"
	if d.Dialect == goose.DialectPostgres {
		dir = "migrations/postgres"
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	provider, err := goose.NewProvider(d.Dialect, d.SQL, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return provider, nil
}

// Migrate は未適用のマイグレーションをすべて適用します。
// すでに最新の場合は何もしません（既存データは保持されます）。
func (d *DB) Migrate(ctx context.Context) error {
	provider, err := d.newProvider()
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Reset はすべてのマイグレーションを巻き戻してから再適用します。
// 全ユーザーが削除されるため、明示的な reset-db コマンドからのみ呼び出します。
func (d *DB) Reset(ctx context.Context) error {
	provider, err := d.newProvider()
	if err != nil {
		return err
	}
	if _, err := provider.DownTo(ctx, 0); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version は現在のスキーマバージョンを返します。
func (d *DB) Version(ctx context.Context) (int64, error) {
	provider, err := d.newProvider()
	if err != nil {
		return 0, err
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
