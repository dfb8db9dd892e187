package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentwatch/golang_services/internal/listing_service/provider"
	notifyapp "github.com/rentwatch/golang_services/internal/notification_service/app"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// SearchSource is the part of the search registry a pass needs.
type SearchSource interface {
	FindActiveSearches(ctx context.Context) ([]*domain.Search, error)
	UpdateLastChecked(ctx context.Context, id uuid.UUID)
}

// Ledger partitions fetched listings and records confirmed deliveries.
type Ledger interface {
	Partition(ctx context.Context, searchID uuid.UUID, listings []domain.Listing) (alreadySent, candidates []domain.Listing, err error)
	Commit(ctx context.Context, searchID uuid.UUID, confirmed []domain.Listing) (int, error)
}

// Sender delivers listings and short notices to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, listings []domain.Listing) domain.DispatchResult
	SendNotice(ctx context.Context, chatID int64, text string) error
}

// Pipeline runs fetch, district filter, dedup, dispatch and ledger commit for one search.
// Scheduled passes and the check right after a search is created both go through RunSearch.
// At most one RunSearch is in flight per search.
type Pipeline struct {
	fetcher      provider.Fetcher
	searches     SearchSource
	ledger       Ledger
	sender       Sender
	fetchTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewPipeline(
	fetcher provider.Fetcher,
	searches SearchSource,
	ledger Ledger,
	sender Sender,
	fetchTimeout time.Duration,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		fetcher:      fetcher,
		searches:     searches,
		ledger:       ledger,
		sender:       sender,
		fetchTimeout: fetchTimeout,
		logger:       logger.With("component", "pipeline"),
		inFlight:     make(map[uuid.UUID]struct{}),
	}
}

// RunSearch checks one search. A fetch failure leaves lastCheckedAt untouched so the search
// shows up as stale. Only listings whose delivery was confirmed are committed to the ledger.
// When the search is already being checked, RunSearch returns at once with Skipped set.
func (p *Pipeline) RunSearch(ctx context.Context, search *domain.Search, mode domain.CheckMode) (domain.CheckOutcome, error) {
	var out domain.CheckOutcome
	log := p.logger.With("search_id", search.ID, "user_id", search.UserID, "mode", mode.String())

	if !p.claim(search.ID) {
		log.InfoContext(ctx, "Search already being checked, skipping")
		out.Skipped = true
		return out, nil
	}
	defer p.release(search.ID)

	listings, err := p.fetch(ctx, search.Criteria)
	if err != nil {
		log.WarnContext(ctx, "Fetch failed", "fetcher", p.fetcher.GetName(), "error", err)
		return out, err
	}
	out.Fetched = len(listings)

	matched := provider.FilterByDistricts(listings, search.Criteria.Districts)
	out.Matched = len(matched)

	alreadySent, fresh, err := p.ledger.Partition(ctx, search.ID, matched)
	if err != nil {
		log.ErrorContext(ctx, "Failed to partition listings", "error", err)
		return out, err
	}
	out.AlreadySent = len(alreadySent)
	out.New = len(fresh)

	if len(fresh) == 0 {
		p.searches.UpdateLastChecked(ctx, search.ID)
		log.InfoContext(ctx, "No new listings", "fetched", out.Fetched, "matched", out.Matched)
		return out, nil
	}

	if err := p.sender.SendNotice(ctx, search.ChatID, notifyapp.NewListingsHeadline(mode, len(fresh))); err != nil {
		log.WarnContext(ctx, "Failed to send headline", "error", err)
	}

	res := p.sender.Send(ctx, search.ChatID, fresh)
	out.Delivered = len(res.Confirmed)
	out.Failed = len(res.Failed)

	recorded, commitErr := p.ledger.Commit(ctx, search.ID, res.Confirmed)
	out.Recorded = recorded
	p.searches.UpdateLastChecked(ctx, search.ID)

	log.InfoContext(ctx, "Search checked",
		"fetched", out.Fetched, "matched", out.Matched, "already_sent", out.AlreadySent,
		"delivered", out.Delivered, "failed", out.Failed, "recorded", out.Recorded)
	if commitErr != nil {
		return out, fmt.Errorf("commit sent listings for search %s: %w", search.ID, commitErr)
	}
	return out, nil
}

func (p *Pipeline) claim(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[id]; busy {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

func (p *Pipeline) release(id uuid.UUID) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

func (p *Pipeline) fetch(ctx context.Context, c domain.Criteria) ([]domain.Listing, error) {
	fetchCtx := ctx
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}
	listings, err := p.fetcher.Search(fetchCtx, c)
	if err != nil {
		if !errors.Is(err, domain.ErrFetchFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrFetchFailure, err)
		}
		return nil, err
	}
	return listings, nil
}
