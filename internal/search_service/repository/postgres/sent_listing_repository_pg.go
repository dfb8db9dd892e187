package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rentwatch/golang_services/internal/platform/database"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

type PgSentListingRepository struct {
	db     database.Querier
	logger *slog.Logger
}

func NewPgSentListingRepository(db database.Querier, logger *slog.Logger) *PgSentListingRepository {
	return &PgSentListingRepository{db: db, logger: logger}
}

func (r *PgSentListingRepository) FilterSent(ctx context.Context, searchID uuid.UUID, externalIDs []string) (map[string]struct{}, error) {
	sent := make(map[string]struct{})
	if len(externalIDs) == 0 {
		return sent, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT external_id FROM sent_listings WHERE search_id = $1 AND external_id = ANY($2)`,
		searchID, externalIDs,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying sent listings", "error", err, "search_id", searchID)
		return nil, fmt.Errorf("query sent listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sent listing: %w", err)
		}
		sent[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sent listings: %w", err)
	}
	return sent, nil
}

// Insert is idempotent on (search_id, external_id).
func (r *PgSentListingRepository) Insert(ctx context.Context, l *domain.SentListing) (bool, error) {
	query := `
		INSERT INTO sent_listings (id, search_id, external_id, url, price, rooms, district, description, photo_urls, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (search_id, external_id) DO NOTHING
	`
	photos := l.PhotoURLs
	if photos == nil {
		photos = []string{}
	}
	tag, err := r.db.Exec(ctx, query,
		l.ID, l.SearchID, l.ExternalID, l.URL, l.Price, l.Rooms, l.District, l.Description, photos, l.SentAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error recording sent listing", "error", err, "search_id", l.SearchID, "external_id", l.ExternalID)
		return false, fmt.Errorf("insert sent listing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgSentListingRepository) CountBySearch(ctx context.Context, searchID uuid.UUID) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sent_listings WHERE search_id = $1`, searchID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sent listings: %w", err)
	}
	return n, nil
}
