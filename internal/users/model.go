// Package users はユーザー情報の永続化と認証判定を提供します。
package users

import "time"

// User は登録済みユーザーを表します。PasswordHash に平文が入ることはありません。
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
