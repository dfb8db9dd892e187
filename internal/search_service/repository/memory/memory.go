// Package memory holds process-local repositories for development runs and tests.
// They enforce the same invariants as the Postgres repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

type Store struct {
	mu       sync.Mutex
	users    map[int64]domain.User
	searches map[uuid.UUID]*domain.Search
	sent     map[uuid.UUID]map[string]domain.SentListing
}

func NewStore() *Store {
	return &Store{
		users:    make(map[int64]domain.User),
		searches: make(map[uuid.UUID]*domain.Search),
		sent:     make(map[uuid.UUID]map[string]domain.SentListing),
	}
}

// Users, Searches and SentListings expose the store through the repository interfaces.
func (s *Store) Users() domain.UserRepository               { return userRepo{s} }
func (s *Store) Searches() domain.SearchRepository          { return searchRepo{s} }
func (s *Store) SentListings() domain.SentListingRepository { return sentRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) Upsert(_ context.Context, user *domain.User) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	out := *user
	if existing, ok := r.s.users[user.ID]; ok {
		out.CreatedAt = existing.CreatedAt
	} else {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	r.s.users[user.ID] = out
	return &out, nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

type searchRepo struct{ s *Store }

func (r searchRepo) Create(_ context.Context, search *domain.Search) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if search.Status == domain.StatusActive && r.s.activeForLocked(search.UserID, uuid.Nil) != nil {
		return domain.ErrLimitExceeded
	}
	cp := copySearch(search)
	r.s.searches[search.ID] = cp
	return nil
}

func (r searchRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Search, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.searches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.s.withChatLocked(s), nil
}

func (r searchRepo) GetActiveByUser(_ context.Context, userID int64) (*domain.Search, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if s := r.s.activeForLocked(userID, uuid.Nil); s != nil {
		return r.s.withChatLocked(s), nil
	}
	return nil, domain.ErrNotFound
}

func (r searchRepo) GetCurrentByUser(_ context.Context, userID int64) (*domain.Search, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *domain.Search
	for _, s := range r.s.searches {
		if s.UserID != userID || s.Status == domain.StatusDeleted {
			continue
		}
		if best == nil ||
			(s.IsActive() && !best.IsActive()) ||
			(s.IsActive() == best.IsActive() && s.UpdatedAt.After(best.UpdatedAt)) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return r.s.withChatLocked(best), nil
}

func (r searchRepo) ListActive(_ context.Context, limit int) ([]*domain.Search, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Search
	for _, s := range r.s.searches {
		if s.IsActive() {
			out = append(out, r.s.withChatLocked(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return checkedBefore(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// checkedBefore orders never-checked searches first, then by last check, then by creation.
func checkedBefore(a, b *domain.Search) bool {
	switch {
	case a.LastCheckedAt == nil && b.LastCheckedAt != nil:
		return true
	case a.LastCheckedAt != nil && b.LastCheckedAt == nil:
		return false
	case a.LastCheckedAt != nil && !a.LastCheckedAt.Equal(*b.LastCheckedAt):
		return a.LastCheckedAt.Before(*b.LastCheckedAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (r searchRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.SearchStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.searches[id]
	if !ok || s.Status == domain.StatusDeleted {
		return domain.ErrNotFound
	}
	if status == domain.StatusActive && r.s.activeForLocked(s.UserID, id) != nil {
		return domain.ErrLimitExceeded
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r searchRepo) Activate(ctx context.Context, id uuid.UUID) error {
	return r.UpdateStatus(ctx, id, domain.StatusActive)
}

func (r searchRepo) UpdateCriteria(_ context.Context, id uuid.UUID, criteria domain.Criteria) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.searches[id]
	if !ok || s.Status == domain.StatusDeleted {
		return domain.ErrNotFound
	}
	s.Criteria = criteria.Clone()
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r searchRepo) TouchLastChecked(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.searches[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	s.LastCheckedAt = &now
	return nil
}

type sentRepo struct{ s *Store }

func (r sentRepo) FilterSent(_ context.Context, searchID uuid.UUID, externalIDs []string) (map[string]struct{}, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]struct{})
	for _, id := range externalIDs {
		if _, ok := r.s.sent[searchID][id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (r sentRepo) Insert(_ context.Context, l *domain.SentListing) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	bySearch, ok := r.s.sent[l.SearchID]
	if !ok {
		bySearch = make(map[string]domain.SentListing)
		r.s.sent[l.SearchID] = bySearch
	}
	if _, exists := bySearch[l.ExternalID]; exists {
		return false, nil
	}
	bySearch[l.ExternalID] = *l
	return true, nil
}

func (r sentRepo) CountBySearch(_ context.Context, searchID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.sent[searchID]), nil
}

func (s *Store) activeForLocked(userID int64, except uuid.UUID) *domain.Search {
	for id, search := range s.searches {
		if id != except && search.UserID == userID && search.IsActive() {
			return search
		}
	}
	return nil
}

func (s *Store) withChatLocked(search *domain.Search) *domain.Search {
	cp := copySearch(search)
	if u, ok := s.users[search.UserID]; ok {
		cp.ChatID = u.ChatID
	}
	return cp
}

func copySearch(s *domain.Search) *domain.Search {
	cp := *s
	cp.Criteria = s.Criteria.Clone()
	if s.LastCheckedAt != nil {
		t := *s.LastCheckedAt
		cp.LastCheckedAt = &t
	}
	return &cp
}
