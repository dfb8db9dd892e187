package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// DedupLedger records which listings were delivered for which search.
type DedupLedger struct {
	repo   domain.SentListingRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewDedupLedger(repo domain.SentListingRepository, logger *slog.Logger) *DedupLedger {
	return &DedupLedger{
		repo:   repo,
		logger: logger.With("component", "dedup_ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Partition splits listings into those already delivered for searchID and new candidates.
// Duplicates inside the batch are collapsed onto their first occurrence.
func (l *DedupLedger) Partition(ctx context.Context, searchID uuid.UUID, listings []domain.Listing) (alreadySent, candidates []domain.Listing, err error) {
	ids := make([]string, 0, len(listings))
	for _, listing := range listings {
		ids = append(ids, listing.ExternalID)
	}

	sent, err := l.repo.FilterSent(ctx, searchID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("partition listings: %w", err)
	}

	seenInBatch := make(map[string]struct{}, len(listings))
	for _, listing := range listings {
		if _, dup := seenInBatch[listing.ExternalID]; dup {
			continue
		}
		seenInBatch[listing.ExternalID] = struct{}{}

		if _, ok := sent[listing.ExternalID]; ok {
			alreadySent = append(alreadySent, listing)
		} else {
			candidates = append(candidates, listing)
		}
	}
	return alreadySent, candidates, nil
}

// Commit records each confirmed listing. Re-committing a recorded pair is a no-op.
// Every listing is attempted; the returned error joins individual failures.
func (l *DedupLedger) Commit(ctx context.Context, searchID uuid.UUID, confirmed []domain.Listing) (int, error) {
	var (
		inserted int
		errs     []error
	)
	sentAt := l.now()
	for _, listing := range confirmed {
		ok, err := l.repo.Insert(ctx, domain.NewSentListing(searchID, listing, sentAt))
		if err != nil {
			l.logger.ErrorContext(ctx, "Failed to record sent listing", "search_id", searchID, "external_id", listing.ExternalID, "error", err)
			errs = append(errs, fmt.Errorf("record %s: %w", listing.ExternalID, err))
			continue
		}
		if ok {
			inserted++
		}
	}
	return inserted, errors.Join(errs...)
}

// SentCount is the number of listings delivered for searchID so far.
func (l *DedupLedger) SentCount(ctx context.Context, searchID uuid.UUID) (int, error) {
	return l.repo.CountBySearch(ctx, searchID)
}
