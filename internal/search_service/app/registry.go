package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// SearchRegistry owns the search lifecycle and the one-active-search-per-user rule.
type SearchRegistry struct {
	searches domain.SearchRepository
	users    domain.UserRepository
	logger   *slog.Logger
}

func NewSearchRegistry(searches domain.SearchRepository, users domain.UserRepository, logger *slog.Logger) *SearchRegistry {
	return &SearchRegistry{
		searches: searches,
		users:    users,
		logger:   logger.With("component", "search_registry"),
	}
}

// EnsureUser records a first-contact user or refreshes an existing profile.
func (r *SearchRegistry) EnsureUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil || user.ID == 0 {
		return nil, errors.New("user id is required")
	}
	if user.ChatID == 0 {
		user.ChatID = user.ID
	}
	return r.users.Upsert(ctx, user)
}

// CreateSearch persists a new active search for user.
func (r *SearchRegistry) CreateSearch(ctx context.Context, user *domain.User, criteria domain.Criteria) (*domain.Search, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	existing, err := r.searches.GetActiveByUser(ctx, user.ID)
	switch {
	case err == nil:
		r.logger.InfoContext(ctx, "Refusing second active search", "user_id", user.ID, "active_search_id", existing.ID)
		return nil, domain.ErrLimitExceeded
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("check active search: %w", err)
	}

	search := domain.NewSearch(user, criteria)
	if err := r.searches.Create(ctx, search); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "Search created", "search_id", search.ID, "user_id", user.ID)
	return search, nil
}

func (r *SearchRegistry) PauseSearch(ctx context.Context, id uuid.UUID) error {
	return r.searches.UpdateStatus(ctx, id, domain.StatusPaused)
}

// ResumeSearch fails with ErrLimitExceeded when another search of the owner is active.
func (r *SearchRegistry) ResumeSearch(ctx context.Context, id uuid.UUID) error {
	return r.searches.Activate(ctx, id)
}

// UpdateCriteria re-validates and overwrites the criteria of a non-deleted search.
func (r *SearchRegistry) UpdateCriteria(ctx context.Context, id uuid.UUID, criteria domain.Criteria) error {
	if err := criteria.Validate(); err != nil {
		return err
	}
	return r.searches.UpdateCriteria(ctx, id, criteria)
}

// DeleteSearch is a soft delete so ledger rows keep their parent.
func (r *SearchRegistry) DeleteSearch(ctx context.Context, id uuid.UUID) error {
	return r.searches.UpdateStatus(ctx, id, domain.StatusDeleted)
}

func (r *SearchRegistry) FindActiveSearches(ctx context.Context) ([]*domain.Search, error) {
	return r.searches.ListActive(ctx, 0)
}

// ListActiveSearches is FindActiveSearches with a cap, for operator views.
func (r *SearchRegistry) ListActiveSearches(ctx context.Context, limit int) ([]*domain.Search, error) {
	return r.searches.ListActive(ctx, limit)
}

// UpdateLastChecked is bookkeeping only; failures are logged and swallowed.
func (r *SearchRegistry) UpdateLastChecked(ctx context.Context, id uuid.UUID) {
	if err := r.searches.TouchLastChecked(ctx, id); err != nil {
		r.logger.WarnContext(ctx, "Failed to update last checked time", "search_id", id, "error", err)
	}
}

func (r *SearchRegistry) GetSearch(ctx context.Context, id uuid.UUID) (*domain.Search, error) {
	return r.searches.GetByID(ctx, id)
}

// CurrentSearch returns the user's active search, or the newest paused one.
func (r *SearchRegistry) CurrentSearch(ctx context.Context, userID int64) (*domain.Search, error) {
	return r.searches.GetCurrentByUser(ctx, userID)
}

func (r *SearchRegistry) ActiveSearch(ctx context.Context, userID int64) (*domain.Search, error) {
	return r.searches.GetActiveByUser(ctx, userID)
}
