package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}).
		AddRow("1", "admin@example.com", "hash", "Admin", string(models.RoleAdmin), true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("admin@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDPassesThroughNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1")).
		WithArgs("rt-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := &models.RefreshToken{ID: "rt-1", UserID: "u1", Token: "opaque", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	assert.False(t, token.CreatedAt.IsZero())
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), "rt-1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
