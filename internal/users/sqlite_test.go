package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE users (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  username      TEXT    NOT NULL UNIQUE,
  email         TEXT    NOT NULL UNIQUE,
  password_hash TEXT    NOT NULL,
  created_at    INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSQLiteCreate_AssignsID(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	first, err := r.Create(ctx, &User{Username: "alice", Email: "alice@example.com", PasswordHash: "h1"})
	require.NoError(t, err)
	second, err := r.Create(ctx, &User{Username: "bob", Email: "bob@example.com", PasswordHash: "h2"})
	require.NoError(t, err)

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestSQLiteFindByUsername_Found(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := r.Create(ctx, &User{Username: "alice", Email: "alice@example.com", PasswordHash: "h1", CreatedAt: created})
	require.NoError(t, err)

	u, err := r.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "h1", u.PasswordHash)
	assert.True(t, created.Equal(u.CreatedAt))
}

func TestSQLiteFindByUsername_NotExists_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	u, err := r.FindByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestSQLiteCreate_DuplicateUsername(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Create(ctx, &User{Username: "alice", Email: "alice@example.com", PasswordHash: "h1"})
	require.NoError(t, err)

	_, err = r.Create(ctx, &User{Username: "alice", Email: "other@example.com", PasswordHash: "h2"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "username", vErr.Field)
	assert.Equal(t, "username must be unique", vErr.Message)
}

func TestSQLiteCreate_DuplicateEmail(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Create(ctx, &User{Username: "alice", Email: "alice@example.com", PasswordHash: "h1"})
	require.NoError(t, err)

	_, err = r.Create(ctx, &User{Username: "alice2", Email: "alice@example.com", PasswordHash: "h2"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "email must be unique", vErr.Message)
}

func TestSQLiteCreate_DBError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(errors.New("disk I/O error"))

	_, err = NewSQLiteRepository(db).Create(context.Background(), &User{Username: "alice", Email: "a@example.com", PasswordHash: "h"})
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "db error: disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteFindByUsername_DBError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*username,\s*email,\s*password_hash,\s*created_at\s+FROM\s+users\s+WHERE\s+username\s*=\s*\?$`).
		WithArgs("alice").
		WillReturnError(errors.New("db down"))

	_, err = NewSQLiteRepository(db).FindByUsername(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	require.NoError(t, mock.ExpectationsWereMet())
}
