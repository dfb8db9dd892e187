package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

type MockSearchRepository struct {
	mock.Mock
}

func (m *MockSearchRepository) Create(ctx context.Context, s *domain.Search) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockSearchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Search, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Search), args.Error(1)
}

func (m *MockSearchRepository) GetActiveByUser(ctx context.Context, userID int64) (*domain.Search, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Search), args.Error(1)
}

func (m *MockSearchRepository) GetCurrentByUser(ctx context.Context, userID int64) (*domain.Search, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Search), args.Error(1)
}

func (m *MockSearchRepository) ListActive(ctx context.Context, limit int) ([]*domain.Search, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Search), args.Error(1)
}

func (m *MockSearchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SearchStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockSearchRepository) Activate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSearchRepository) UpdateCriteria(ctx context.Context, id uuid.UUID, c domain.Criteria) error {
	return m.Called(ctx, id, c).Error(0)
}

func (m *MockSearchRepository) TouchLastChecked(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(ctx context.Context, u *domain.User) (*domain.User, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockSentListingRepository struct {
	mock.Mock
}

func (m *MockSentListingRepository) FilterSent(ctx context.Context, searchID uuid.UUID, ids []string) (map[string]struct{}, error) {
	args := m.Called(ctx, searchID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockSentListingRepository) Insert(ctx context.Context, l *domain.SentListing) (bool, error) {
	args := m.Called(ctx, l)
	return args.Bool(0), args.Error(1)
}

func (m *MockSentListingRepository) CountBySearch(ctx context.Context, searchID uuid.UUID) (int, error) {
	args := m.Called(ctx, searchID)
	return args.Int(0), args.Error(1)
}
