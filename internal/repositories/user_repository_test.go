package repositories

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_sale \\ x`, escapeLike(`50% off_sale \ x`))
}

func TestGetUsersEmptyInputSkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	users, err := repo.GetUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`FROM users WHERE id=\$1`).WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "email", "avatar_url"}))

	_, err := repo.GetUser(context.Background(), 4)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSearchUsersEscapesPattern(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`ILIKE \$1`).WithArgs(`%al\_%`, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "email", "avatar_url"}).AddRow(1, "al_ice", "a@example.com", nil))

	users, err := repo.SearchUsers(context.Background(), " al_ ", 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "al_ice", users[0].DisplayName)
}
