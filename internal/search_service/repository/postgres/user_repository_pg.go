package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rentwatch/golang_services/internal/platform/database"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

type PgUserRepository struct {
	db     database.Querier
	logger *slog.Logger
}

func NewPgUserRepository(db database.Querier, logger *slog.Logger) *PgUserRepository {
	return &PgUserRepository{db: db, logger: logger}
}

// Upsert inserts a first-contact user or refreshes the profile of a known one.
func (r *PgUserRepository) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, chat_id, username, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE
		SET chat_id = EXCLUDED.chat_id,
		    username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`
	out := *user
	err := r.db.QueryRow(ctx, query,
		user.ID, user.ChatID, user.Username, user.FirstName, user.LastName, time.Now().UTC(),
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error upserting user", "error", err, "user_id", user.ID)
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &out, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT id, chat_id, username, first_name, last_name, created_at, updated_at FROM users WHERE id = $1`
	var u domain.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.ChatID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting user", "error", err, "user_id", id)
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
