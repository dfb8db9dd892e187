package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	searchapp "github.com/rentwatch/golang_services/internal/search_service/app"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
	"github.com/rentwatch/golang_services/internal/search_service/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, c domain.Criteria) ([]domain.Listing, error)
}

func (f *stubFetcher) GetName() string { return "stub" }

func (f *stubFetcher) Search(ctx context.Context, c domain.Criteria) ([]domain.Listing, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, c)
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSender struct {
	mu      sync.Mutex
	fail    map[string]bool
	sent    []string
	notices []string
}

func (s *fakeSender) Send(_ context.Context, _ int64, listings []domain.Listing) domain.DispatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res domain.DispatchResult
	for _, l := range listings {
		if s.fail[l.ExternalID] {
			res.Failed = append(res.Failed, l)
			continue
		}
		s.sent = append(s.sent, l.ExternalID)
		res.Confirmed = append(res.Confirmed, l)
	}
	return res
}

func (s *fakeSender) SendNotice(_ context.Context, _ int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, text)
	return nil
}

func (s *fakeSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type pipelineTestComponents struct {
	store    *memory.Store
	registry *searchapp.SearchRegistry
	ledger   *searchapp.DedupLedger
	fetcher  *stubFetcher
	sender   *fakeSender
	pipeline *Pipeline
}

func setupPipelineTest(t *testing.T) pipelineTestComponents {
	t.Helper()
	logger := discardLogger()
	store := memory.NewStore()
	registry := searchapp.NewSearchRegistry(store.Searches(), store.Users(), logger)
	ledger := searchapp.NewDedupLedger(store.SentListings(), logger)
	fetcher := &stubFetcher{fn: func(context.Context, domain.Criteria) ([]domain.Listing, error) { return nil, nil }}
	sender := &fakeSender{fail: map[string]bool{}}
	return pipelineTestComponents{
		store:    store,
		registry: registry,
		ledger:   ledger,
		fetcher:  fetcher,
		sender:   sender,
		pipeline: NewPipeline(fetcher, registry, ledger, sender, 0, logger),
	}
}

func (c pipelineTestComponents) createSearch(t *testing.T, userID int64, criteria domain.Criteria) *domain.Search {
	t.Helper()
	ctx := context.Background()
	user, err := c.registry.EnsureUser(ctx, &domain.User{ID: userID, ChatID: userID * 10})
	require.NoError(t, err)
	search, err := c.registry.CreateSearch(ctx, user, criteria)
	require.NoError(t, err)
	return search
}

func listingsNamed(ids ...string) []domain.Listing {
	out := make([]domain.Listing, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Listing{
			ExternalID: id,
			URL:        fmt.Sprintf("https://www.idealista.com/inmueble/%s/", id),
			Price:      domain.IntPtr(900),
			District:   "Ruzafa",
		})
	}
	return out
}
