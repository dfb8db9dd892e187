package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// MockFetcher serves a fixed catalogue, filtered by price and rooms like the real actor.
// It backs local runs without Apify credentials.
type MockFetcher struct {
	logger         *slog.Logger
	mu             sync.Mutex
	catalogue      []domain.Listing
	FailSearch     bool
	SimulatedDelay time.Duration
}

func NewMockFetcher(logger *slog.Logger, catalogue []domain.Listing, delay time.Duration) *MockFetcher {
	return &MockFetcher{
		logger:         logger.With("provider", "mock"),
		catalogue:      catalogue,
		SimulatedDelay: delay,
	}
}

func (f *MockFetcher) GetName() string { return "mock" }

// SetCatalogue replaces the listings served from now on.
func (f *MockFetcher) SetCatalogue(listings []domain.Listing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogue = listings
}

func (f *MockFetcher) Search(ctx context.Context, c domain.Criteria) ([]domain.Listing, error) {
	if f.SimulatedDelay > 0 {
		select {
		case <-time.After(f.SimulatedDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailure, ctx.Err())
		}
	}
	if f.FailSearch {
		return nil, fmt.Errorf("%w: mock provider simulated failure", domain.ErrFetchFailure)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Listing
	for _, l := range f.catalogue {
		if c.MinPrice != nil && (l.Price == nil || *l.Price < *c.MinPrice) {
			continue
		}
		if c.MaxPrice != nil && (l.Price == nil || *l.Price > *c.MaxPrice) {
			continue
		}
		if c.NumRooms != nil && !roomsMatch(l.Rooms, *c.NumRooms) {
			continue
		}
		out = append(out, l)
	}
	f.logger.DebugContext(ctx, "Mock search served", "listings", len(out))
	return out, nil
}

func roomsMatch(rooms *int, wanted int) bool {
	if rooms == nil {
		return false
	}
	if wanted >= domain.MaxRooms {
		return *rooms >= domain.MaxRooms
	}
	return *rooms == wanted
}

// DemoCatalogue is a small Valencia sample for local runs.
func DemoCatalogue() []domain.Listing {
	return []domain.Listing{
		{ExternalID: "demo-1", URL: "https://www.idealista.com/inmueble/100000001/", Price: domain.IntPtr(850), Rooms: domain.IntPtr(1), District: "Ruzafa", Description: "Bright studio near the market."},
		{ExternalID: "demo-2", URL: "https://www.idealista.com/inmueble/100000002/", Price: domain.IntPtr(1100), Rooms: domain.IntPtr(2), District: "Benimaclet", Description: "Two bedrooms, terrace."},
		{ExternalID: "demo-3", URL: "https://www.idealista.com/inmueble/100000003/", Price: domain.IntPtr(1450), Rooms: domain.IntPtr(3), District: "L'Eixample"},
		{ExternalID: "demo-4", URL: "https://www.idealista.com/inmueble/100000004/", Price: domain.IntPtr(2300), Rooms: domain.IntPtr(5), District: "El Pla del Real"},
	}
}
