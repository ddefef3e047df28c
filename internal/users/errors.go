package users

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials はユーザーが存在しない場合とパスワード不一致の場合の両方で返されます。
var ErrInvalidCredentials = errors.New("invalid username or password")

// ValidationError は入力値の検証や一意制約に違反した場合のエラーです。
type ValidationError struct {
	Field   string
	Message string
}

// Error は error インターフェースを実装します。
func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func uniqueViolation(field string) *ValidationError {
	return newValidationError(field, "%s must be unique", field)
}

// IsValidationError は err が ValidationError を含むかを返します。
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
