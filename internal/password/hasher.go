// Package password はパスワードのハッシュ化と照合を提供します。
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost は bcrypt のデフォルトコストです。
const DefaultCost = bcrypt.DefaultCost

// Hasher はパスワードのハッシュ化と照合を行うインターフェースです。
type Hasher interface {
	// Hash はランダムなソルトを含むハッシュ文字列を返します。
	Hash(plaintext string) (string, error)
	// Verify は平文とハッシュが一致するかを返します。不正なハッシュは不一致として扱います。
	Verify(plaintext, digest string) bool
}

// Bcrypt は bcrypt による Hasher 実装です。
// ソルトは呼び出しごとに生成され、ハッシュ文字列に埋め込まれます。
type Bcrypt struct {
	cost int
}

// NewBcrypt は指定コストの Bcrypt を作成します。範囲外のコストは DefaultCost に丸めます。
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash はパスワードをハッシュ化します。
func (b *Bcrypt) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify はパスワードを照合します。
func (b *Bcrypt) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// Cost は設定されたコストを返します。
func (b *Bcrypt) Cost() int {
	return b.cost
}
