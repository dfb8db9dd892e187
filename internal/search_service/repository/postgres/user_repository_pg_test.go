package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

func TestPgUserRepository(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPgUserRepository(mockPool, discardLogger())

	t.Run("UpsertReturnsTimestamps", func(t *testing.T) {
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		mockPool.ExpectQuery(`INSERT INTO users`).
			WithArgs(int64(7), int64(7), "maria", "María", "", pgxmock.AnyArg()).
			WillReturnRows(mockPool.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

		u, err := repo.Upsert(context.Background(), &domain.User{ID: 7, ChatID: 7, Username: "maria", FirstName: "María"})
		require.NoError(t, err)
		assert.Equal(t, created, u.CreatedAt)
		assert.Equal(t, "María", u.FirstName)
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		mockPool.ExpectQuery(`FROM users WHERE id`).WithArgs(int64(8)).
			WillReturnRows(mockPool.NewRows([]string{"id", "chat_id", "username", "first_name", "last_name", "created_at", "updated_at"}))

		_, err := repo.GetByID(context.Background(), 8)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	assert.NoError(t, mockPool.ExpectationsWereMet())
}
