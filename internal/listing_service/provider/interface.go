package provider

import (
	"context"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// Fetcher returns candidate listings for criteria. An empty result is not an error;
// transport and provider failures wrap domain.ErrFetchFailure.
type Fetcher interface {
	Search(ctx context.Context, criteria domain.Criteria) ([]domain.Listing, error)
	GetName() string
}
