package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var typingRowColumns = []string{"conversation_id", "user_id", "started_at", "expires_at"}

func TestTypingRepoActiveFiltersOnExpiry(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTypingRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`expires_at > \$2`).WithArgs(int64(10), now).
		WillReturnRows(sqlmock.NewRows(typingRowColumns).AddRow(10, 2, now.Add(-time.Second), now.Add(4*time.Second)))

	active, err := repo.Active(context.Background(), 10, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTypingRepoRemoveUserReturnsRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTypingRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`DELETE FROM typing_indicators WHERE user_id=\$1`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(typingRowColumns).
			AddRow(10, 1, now, now.Add(5*time.Second)).
			AddRow(11, 1, now, now.Add(5*time.Second)))

	removed, err := repo.RemoveUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
}

func TestTypingRepoDeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTypingRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM typing_indicators WHERE expires_at <= \$1`).WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
