package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

func TestPipeline_RunSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("only confirmed new listings reach the ledger", func(t *testing.T) {
		comps := setupPipelineTest(t)
		search := comps.createSearch(t, 1, domain.Criteria{MaxPrice: domain.IntPtr(1200)})

		_, err := comps.ledger.Commit(ctx, search.ID, listingsNamed("1", "2"))
		require.NoError(t, err)

		comps.fetcher.fn = func(context.Context, domain.Criteria) ([]domain.Listing, error) {
			return listingsNamed("1", "2", "3", "4", "5"), nil
		}
		comps.sender.fail["4"] = true

		out, err := comps.pipeline.RunSearch(ctx, search, domain.CheckScheduled)
		require.NoError(t, err)

		assert.Equal(t, domain.CheckOutcome{Fetched: 5, Matched: 5, AlreadySent: 2, New: 3, Delivered: 2, Failed: 1, Recorded: 2}, out)
		assert.Equal(t, []string{"3", "5"}, comps.sender.Sent())

		count, err := comps.ledger.SentCount(ctx, search.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, count)

		require.Len(t, comps.sender.notices, 1)
		assert.Contains(t, comps.sender.notices[0], "Found 3 apartments for your search")
	})

	t.Run("failed listing is retried on the next run", func(t *testing.T) {
		comps := setupPipelineTest(t)
		search := comps.createSearch(t, 1, domain.Criteria{MaxPrice: domain.IntPtr(1200)})
		comps.fetcher.fn = func(context.Context, domain.Criteria) ([]domain.Listing, error) {
			return listingsNamed("a", "b"), nil
		}
		comps.sender.fail["b"] = true
		_, err := comps.pipeline.RunSearch(ctx, search, domain.CheckScheduled)
		require.NoError(t, err)

		delete(comps.sender.fail, "b")
		out, err := comps.pipeline.RunSearch(ctx, search, domain.CheckScheduled)
		require.NoError(t, err)
		assert.Equal(t, 1, out.New)
		assert.Equal(t, []string{"a", "b"}, comps.sender.Sent())
	})

	t.Run("district filter applies before dedup", func(t *testing.T) {
		comps := setupPipelineTest(t)
		search := comps.createSearch(t, 1, domain.Criteria{Districts: []string{"benimaclet"}})
		comps.fetcher.fn = func(context.Context, domain.Criteria) ([]domain.Listing, error) {
			ls := listingsNamed("1", "2", "3")
			ls[1].District = "Benimaclet"
			ls[2].District = ""
			return ls, nil
		}

		out, err := comps.pipeline.RunSearch(ctx, search, domain.CheckImmediate)
		require.NoError(t, err)
		assert.Equal(t, 3, out.Fetched)
		assert.Equal(t, 1, out.Matched)
		assert.Equal(t, []string{"2"}, comps.sender.Sent())
		assert.Equal(t, "Found 1 apartment:", comps.sender.notices[0])
	})

	t.Run("empty result still records the check", func(t *testing.T) {
		comps := setupPipelineTest(t)
		search := comps.createSearch(t, 1, domain.Criteria{MinPrice: domain.IntPtr(100)})

		out, err := comps.pipeline.RunSearch(ctx, search, domain.CheckScheduled)
		require.NoError(t, err)
		assert.Zero(t, out.New)
		assert.Empty(t, comps.sender.notices)

		stored, err := comps.registry.GetSearch(ctx, search.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.LastCheckedAt)
	})

	t.Run("fetch failure leaves last checked untouched", func(t *testing.T) {
		comps := setupPipelineTest(t)
		search := comps.createSearch(t, 1, domain.Criteria{MinPrice: domain.IntPtr(100)})
		comps.fetcher.fn = func(context.Context, domain.Criteria) ([]domain.Listing, error) {
			return nil, errors.New("connection reset")
		}

		_, err := comps.pipeline.RunSearch(ctx, search, domain.CheckScheduled)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrFetchFailure)

		stored, err := comps.registry.GetSearch(ctx, search.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.LastCheckedAt)
	})

	t.Run("slow fetch is bounded by the fetch timeout", func(t *testing.T) {
		comps := setupPipelineTest(t)
		comps.pipeline.fetchTimeout = 20 * time.Millisecond
		search := comps.createSearch(t, 1, domain.Criteria{MinPrice: domain.IntPtr(100)})
		comps.fetcher.fn = func(ctx context.Context, _ domain.Criteria) ([]domain.Listing, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}

		start := time.Now()
		_, err := comps.pipeline.RunSearch(ctx, search, domain.CheckScheduled)
		assert.ErrorIs(t, err, domain.ErrFetchFailure)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestPipeline_ConcurrentChecksOfOneSearch(t *testing.T) {
	ctx := context.Background()
	comps := setupPipelineTest(t)
	search := comps.createSearch(t, 1, domain.Criteria{MaxPrice: domain.IntPtr(1200)})
	sched := newTestScheduler(comps, nil, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	comps.fetcher.fn = func(context.Context, domain.Criteria) ([]domain.Listing, error) {
		once.Do(func() { close(entered) })
		<-release
		return listingsNamed("1", "2", "3"), nil
	}

	type result struct {
		out domain.CheckOutcome
		err error
	}
	immediate := make(chan result, 1)
	go func() {
		out, err := comps.pipeline.RunSearch(ctx, search, domain.CheckImmediate)
		immediate <- result{out, err}
	}()
	<-entered

	summary, err := sched.RunPass(ctx, TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Searches)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Succeeded)
	assert.Equal(t, 1, comps.fetcher.Calls())

	close(release)
	res := <-immediate
	require.NoError(t, res.err)
	assert.False(t, res.out.Skipped)
	assert.Equal(t, 3, res.out.Delivered)

	assert.Equal(t, []string{"1", "2", "3"}, comps.sender.Sent())
	count, err := comps.ledger.SentCount(ctx, search.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// The guard is released once the first check finishes.
	summary, err = sched.RunPass(ctx, TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, summary.Skipped)
	assert.Equal(t, []string{"1", "2", "3"}, comps.sender.Sent())
}
