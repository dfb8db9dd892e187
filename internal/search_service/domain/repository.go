package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists messaging-platform users.
type UserRepository interface {
	// Upsert inserts the user or refreshes its profile fields.
	Upsert(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

// SearchRepository persists searches. Implementations must map missing rows to ErrNotFound
// and a violation of the one-active-per-user rule to ErrLimitExceeded.
type SearchRepository interface {
	Create(ctx context.Context, search *Search) error
	GetByID(ctx context.Context, id uuid.UUID) (*Search, error)
	// GetActiveByUser returns ErrNotFound when the user has no active search.
	GetActiveByUser(ctx context.Context, userID int64) (*Search, error)
	// GetCurrentByUser returns the newest non-deleted search, preferring an active one.
	GetCurrentByUser(ctx context.Context, userID int64) (*Search, error)
	ListActive(ctx context.Context, limit int) ([]*Search, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status SearchStatus) error
	// Activate sets the search active unless another active search exists for the owner.
	Activate(ctx context.Context, id uuid.UUID) error
	UpdateCriteria(ctx context.Context, id uuid.UUID, criteria Criteria) error
	TouchLastChecked(ctx context.Context, id uuid.UUID) error
}

// SentListingRepository is the append-only delivery ledger.
type SentListingRepository interface {
	// FilterSent returns the subset of externalIDs already recorded for searchID.
	FilterSent(ctx context.Context, searchID uuid.UUID, externalIDs []string) (map[string]struct{}, error)
	// Insert records a listing; it reports false when the pair already existed.
	Insert(ctx context.Context, listing *SentListing) (bool, error)
	CountBySearch(ctx context.Context, searchID uuid.UUID) (int, error)
}
