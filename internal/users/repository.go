package users

import "context"

// Repository はユーザーの保存先が実装するインターフェースです。
// 一意制約違反は *ValidationError として返します。
type Repository interface {
	// Create はユーザーを保存し、採番された ID を設定して返します。
	Create(ctx context.Context, user *User) (*User, error)
	// FindByUsername はユーザー名で検索します。見つからない場合は (nil, nil) を返します。
	FindByUsername(ctx context.Context, username string) (*User, error)
}
