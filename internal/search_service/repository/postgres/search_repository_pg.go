package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rentwatch/golang_services/internal/platform/database"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

const (
	uniqueViolation       = "23505"
	oneActiveSearchIndex  = "ux_searches_one_active_per_user"
	searchColumns         = `s.id, s.user_id, u.chat_id, s.status, s.min_price, s.max_price, s.num_rooms, s.districts, s.created_at, s.updated_at, s.last_checked_at`
	searchFromJoinedUsers = `FROM searches s JOIN users u ON u.id = s.user_id`
)

type PgSearchRepository struct {
	db     database.Querier
	logger *slog.Logger
}

func NewPgSearchRepository(db database.Querier, logger *slog.Logger) *PgSearchRepository {
	return &PgSearchRepository{db: db, logger: logger}
}

func (r *PgSearchRepository) Create(ctx context.Context, search *domain.Search) error {
	query := `
		INSERT INTO searches (id, user_id, status, min_price, max_price, num_rooms, districts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		search.ID, search.UserID, search.Status,
		search.Criteria.MinPrice, search.Criteria.MaxPrice, search.Criteria.NumRooms, districtsArg(search.Criteria.Districts),
		search.CreatedAt, search.UpdatedAt,
	)
	if err != nil {
		if isOneActiveViolation(err) {
			r.logger.WarnContext(ctx, "Active search already exists", "user_id", search.UserID)
			return domain.ErrLimitExceeded
		}
		r.logger.ErrorContext(ctx, "Error creating search", "error", err, "user_id", search.UserID)
		return fmt.Errorf("insert search: %w", err)
	}
	r.logger.InfoContext(ctx, "Search created", "search_id", search.ID, "user_id", search.UserID)
	return nil
}

func (r *PgSearchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Search, error) {
	query := `SELECT ` + searchColumns + ` ` + searchFromJoinedUsers + ` WHERE s.id = $1`
	search, err := scanSearch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting search by ID", "error", err, "search_id", id)
		return nil, fmt.Errorf("get search: %w", err)
	}
	return search, nil
}

func (r *PgSearchRepository) GetActiveByUser(ctx context.Context, userID int64) (*domain.Search, error) {
	query := `SELECT ` + searchColumns + ` ` + searchFromJoinedUsers + ` WHERE s.user_id = $1 AND s.status = $2`
	search, err := scanSearch(r.db.QueryRow(ctx, query, userID, domain.StatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting active search", "error", err, "user_id", userID)
		return nil, fmt.Errorf("get active search: %w", err)
	}
	return search, nil
}

func (r *PgSearchRepository) GetCurrentByUser(ctx context.Context, userID int64) (*domain.Search, error) {
	query := `SELECT ` + searchColumns + ` ` + searchFromJoinedUsers + `
		WHERE s.user_id = $1 AND s.status <> $2
		ORDER BY (s.status = $3) DESC, s.updated_at DESC
		LIMIT 1`
	search, err := scanSearch(r.db.QueryRow(ctx, query, userID, domain.StatusDeleted, domain.StatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting current search", "error", err, "user_id", userID)
		return nil, fmt.Errorf("get current search: %w", err)
	}
	return search, nil
}

// ListActive returns active searches oldest-checked first. limit <= 0 means no limit.
func (r *PgSearchRepository) ListActive(ctx context.Context, limit int) ([]*domain.Search, error) {
	query := `SELECT ` + searchColumns + ` ` + searchFromJoinedUsers + `
		WHERE s.status = $1
		ORDER BY s.last_checked_at ASC NULLS FIRST, s.created_at ASC
		LIMIT $2`
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := r.db.Query(ctx, query, domain.StatusActive, limitArg)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing active searches", "error", err)
		return nil, fmt.Errorf("list active searches: %w", err)
	}
	defer rows.Close()

	var searches []*domain.Search
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning active search row", "error", err)
			return nil, fmt.Errorf("scan active search: %w", err)
		}
		searches = append(searches, search)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active searches: %w", err)
	}
	return searches, nil
}

// UpdateStatus moves a non-deleted search to status. Deleted searches are terminal.
func (r *PgSearchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SearchStatus) error {
	query := `UPDATE searches SET status = $1, updated_at = $2 WHERE id = $3 AND status <> $4`
	tag, err := r.db.Exec(ctx, query, status, time.Now().UTC(), id, domain.StatusDeleted)
	if err != nil {
		if isOneActiveViolation(err) {
			return domain.ErrLimitExceeded
		}
		r.logger.ErrorContext(ctx, "Error updating search status", "error", err, "search_id", id, "status", status)
		return fmt.Errorf("update search status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.logger.InfoContext(ctx, "Search status updated", "search_id", id, "status", status)
	return nil
}

// Activate locks the search row, checks that no other search of the owner is active
// and flips it to active in one transaction.
func (r *PgSearchRepository) Activate(ctx context.Context, id uuid.UUID) error {
	err := r.activate(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrLimitExceeded) && !errors.Is(err, domain.ErrNotFound) {
			r.logger.ErrorContext(ctx, "Error activating search", "error", err, "search_id", id)
		}
		return err
	}
	r.logger.InfoContext(ctx, "Search activated", "search_id", id)
	return nil
}

func (r *PgSearchRepository) activate(ctx context.Context, id uuid.UUID) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin activate: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		userID int64
		status domain.SearchStatus
	)
	err = tx.QueryRow(ctx,
		`SELECT user_id, status FROM searches WHERE id = $1 AND status <> $2 FOR UPDATE`,
		id, domain.StatusDeleted,
	).Scan(&userID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("lock search: %w", err)
	}

	if status != domain.StatusActive {
		var otherActive bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM searches WHERE user_id = $1 AND status = $2 AND id <> $3)`,
			userID, domain.StatusActive, id,
		).Scan(&otherActive)
		if err != nil {
			return fmt.Errorf("check active searches: %w", err)
		}
		if otherActive {
			return domain.ErrLimitExceeded
		}

		_, err = tx.Exec(ctx, `UPDATE searches SET status = $1, updated_at = $2 WHERE id = $3`,
			domain.StatusActive, time.Now().UTC(), id)
		if err != nil {
			if isOneActiveViolation(err) {
				return domain.ErrLimitExceeded
			}
			return fmt.Errorf("activate search: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit activate: %w", err)
	}
	return nil
}

func (r *PgSearchRepository) UpdateCriteria(ctx context.Context, id uuid.UUID, criteria domain.Criteria) error {
	query := `
		UPDATE searches
		SET min_price = $1, max_price = $2, num_rooms = $3, districts = $4, updated_at = $5
		WHERE id = $6 AND status <> $7
	`
	tag, err := r.db.Exec(ctx, query,
		criteria.MinPrice, criteria.MaxPrice, criteria.NumRooms, districtsArg(criteria.Districts),
		time.Now().UTC(), id, domain.StatusDeleted,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating search criteria", "error", err, "search_id", id)
		return fmt.Errorf("update search criteria: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.logger.InfoContext(ctx, "Search criteria updated", "search_id", id)
	return nil
}

func (r *PgSearchRepository) TouchLastChecked(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE searches SET last_checked_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update last checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSearch(row pgx.Row) (*domain.Search, error) {
	var (
		s                            domain.Search
		minPrice, maxPrice, numRooms sql.NullInt32
		lastChecked                  sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &s.UserID, &s.ChatID, &s.Status,
		&minPrice, &maxPrice, &numRooms, &s.Criteria.Districts,
		&s.CreatedAt, &s.UpdatedAt, &lastChecked,
	); err != nil {
		return nil, err
	}
	s.Criteria.MinPrice = nullIntPtr(minPrice)
	s.Criteria.MaxPrice = nullIntPtr(maxPrice)
	s.Criteria.NumRooms = nullIntPtr(numRooms)
	if s.Criteria.Districts == nil {
		s.Criteria.Districts = []string{}
	}
	if lastChecked.Valid {
		t := lastChecked.Time
		s.LastCheckedAt = &t
	}
	return &s, nil
}

func nullIntPtr(v sql.NullInt32) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int32)
	return &i
}

// districtsArg keeps the NOT NULL column happy for the unrestricted sentinel.
func districtsArg(d []string) []string {
	if d == nil {
		return []string{}
	}
	return d
}

func isOneActiveViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == oneActiveSearchIndex
}
