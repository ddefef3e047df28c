package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/login-portal/internal/password"
)

// bcrypt が扱える最大バイト長
const maxPasswordBytes = 72

// registration は登録入力の検証ルールです。
type registration struct {
	Username string `validate:"required,max=255"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required"`
}

// Service はユーザー作成と認証判定を提供します。
type Service struct {
	repo     Repository
	hasher   password.Hasher
	validate *validator.Validate

	dummyOnce   sync.Once
	dummyDigest string
}

// NewService は Service を作成します。
func NewService(repo Repository, hasher password.Hasher) *Service {
	return &Service{
		repo:     repo,
		hasher:   hasher,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Create は入力を検証し、パスワードをハッシュ化してからユーザーを保存します。
// 検証エラーと一意制約違反は *ValidationError を返します。
func (s *Service) Create(ctx context.Context, username, email, plaintext string) (*User, error) {
	if err := s.validateRegistration(username, email, plaintext); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	return s.repo.Create(ctx, &User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
	})
}

// FindByUsername はユーザー名でユーザーを取得します。見つからない場合は (nil, nil) です。
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.FindByUsername(ctx, username)
}

// Authenticate はユーザー名とパスワードを照合します。
// ユーザーが存在しない場合もパスワード不一致の場合も ErrInvalidCredentials を返します。
func (s *Service) Authenticate(ctx context.Context, username, plaintext string) (*User, error) {
	if username == "" || plaintext == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// 応答時間からユーザーの有無を推測されないよう照合だけは行う
		s.hasher.Verify(plaintext, s.dummy())
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("dummy-password")
		if err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}

func (s *Service) validateRegistration(username, email, plaintext string) error {
	err := s.validate.Struct(registration{
		Username: username,
		Email:    email,
		Password: plaintext,
	})
	if err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return translateFieldError(fieldErrs[0])
		}
		return fmt.Errorf("failed to validate registration: %w", err)
	}

	if len(plaintext) > maxPasswordBytes {
		return newValidationError("password", "password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func translateFieldError(fe validator.FieldError) *ValidationError {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return newValidationError(field, "%s cannot be empty", field)
	case "email":
		return newValidationError(field, "%s must be a valid email address", field)
	case "max":
		return newValidationError(field, "%s must be at most %s characters", field, fe.Param())
	default:
		return newValidationError(field, "%s is invalid", field)
	}
}
