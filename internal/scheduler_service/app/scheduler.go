package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// TriggerSource names what started a pass.
type TriggerSource string

const (
	TriggerScheduled TriggerSource = "scheduled"
	TriggerAdmin     TriggerSource = "admin"
	TriggerMessage   TriggerSource = "nats"
)

// Config holds configuration specific to the Scheduler.
type Config struct {
	Interval     time.Duration `mapstructure:"SCHEDULER_INTERVAL"`
	InitialDelay time.Duration `mapstructure:"SCHEDULER_INITIAL_DELAY"`
}

// PassSummary describes one finished pass.
type PassSummary struct {
	Trigger    TriggerSource `json:"trigger"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Searches   int           `json:"searches"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Delivered  int           `json:"delivered"`
	Recorded   int           `json:"recorded"`
	Error      string        `json:"error,omitempty"`
}

func (s PassSummary) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }

// SummaryPublisher announces finished passes to other services.
type SummaryPublisher interface {
	PublishPassSummary(ctx context.Context, summary PassSummary) error
}

// PassLock guards passes across replicas. Acquire reports false when another holder has it.
type PassLock interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// Scheduler runs passes over all active searches on a fixed period and on demand.
// At most one pass runs at a time per process, and per deployment when a PassLock is set.
type Scheduler struct {
	pipeline  *Pipeline
	searches  SearchSource
	lock      PassLock
	publisher SummaryPublisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	running atomic.Bool

	mu   sync.RWMutex
	last *PassSummary

	stopCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. lock and publisher may be nil.
func NewScheduler(
	pipeline *Pipeline,
	searches SearchSource,
	lock PassLock,
	publisher SummaryPublisher,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	stopCtx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		pipeline:  pipeline,
		searches:  searches,
		lock:      lock,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
		stopCtx:   stopCtx,
		stop:      stop,
	}
}

// Run waits InitialDelay, then runs a pass every Interval until ctx is done.
// A tick that finds a pass still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.cfg.Interval)
	}
	s.logger.InfoContext(ctx, "Scheduler started", "interval", s.cfg.Interval, "initial_delay", s.cfg.InitialDelay)

	delay := time.NewTimer(s.cfg.InitialDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "Scheduler stopped before first pass")
		return nil
	case <-delay.C:
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunPass(ctx, TriggerScheduled); err != nil {
		if errors.Is(err, domain.ErrPassInProgress) {
			s.logger.InfoContext(ctx, "Previous pass still running, skipping tick")
			return
		}
		s.logger.ErrorContext(ctx, "Scheduled pass failed to start", "error", err)
	}
}

// RunPass runs a pass synchronously. It returns ErrPassInProgress without doing any work
// when another pass holds the guard.
func (s *Scheduler) RunPass(ctx context.Context, trigger TriggerSource) (PassSummary, error) {
	release, err := s.acquire(ctx, trigger)
	if err != nil {
		return PassSummary{}, err
	}
	defer release()
	return s.execute(ctx, trigger), nil
}

// Trigger starts a pass in the background and returns once the guard is held.
// The pass keeps running after ctx is cancelled; Close cancels and waits for it.
func (s *Scheduler) Trigger(ctx context.Context, trigger TriggerSource) error {
	release, err := s.acquire(ctx, trigger)
	if err != nil {
		return err
	}

	passCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopWatch := context.AfterFunc(s.stopCtx, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		defer cancel()
		defer stopWatch()
		s.execute(passCtx, trigger)
	}()
	return nil
}

// Running reports whether a pass is in progress in this process.
func (s *Scheduler) Running() bool { return s.running.Load() }

// LastPass returns the summary of the most recent finished pass.
func (s *Scheduler) LastPass() (PassSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return PassSummary{}, false
	}
	return *s.last, true
}

// Close cancels background passes started by Trigger and waits for them.
func (s *Scheduler) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *Scheduler) acquire(ctx context.Context, trigger TriggerSource) (func(), error) {
	if !s.running.CompareAndSwap(false, true) {
		passesCounter.WithLabelValues(string(trigger), "skipped").Inc()
		return nil, domain.ErrPassInProgress
	}
	if s.lock == nil {
		return func() { s.running.Store(false) }, nil
	}

	unlock, ok, err := s.lock.Acquire(ctx)
	switch {
	case err != nil:
		// Without the shared lock the local guard still prevents overlap in this process.
		s.logger.WarnContext(ctx, "Pass lock unavailable, continuing with local guard", "error", err)
		return func() { s.running.Store(false) }, nil
	case !ok:
		s.running.Store(false)
		passesCounter.WithLabelValues(string(trigger), "skipped").Inc()
		return nil, domain.ErrPassInProgress
	}
	return func() {
		unlock()
		s.running.Store(false)
	}, nil
}

func (s *Scheduler) execute(ctx context.Context, trigger TriggerSource) PassSummary {
	timer := prometheus.NewTimer(passDurationHist)
	defer timer.ObserveDuration()

	summary := PassSummary{Trigger: trigger, StartedAt: s.now()}
	status := "success"
	s.logger.InfoContext(ctx, "Pass started", "trigger", trigger)

	searches, err := s.searches.FindActiveSearches(ctx)
	if err != nil {
		status = "error"
		summary.Error = err.Error()
		s.logger.ErrorContext(ctx, "Failed to list active searches", "error", err)
	}
	summary.Searches = len(searches)

	for _, search := range searches {
		if ctx.Err() != nil {
			status = "cancelled"
			summary.Error = ctx.Err().Error()
			break
		}
		outcome, err := s.checkSearch(ctx, search)
		summary.Delivered += outcome.Delivered
		summary.Recorded += outcome.Recorded
		if err != nil {
			summary.Failed++
			searchesProcessedCounter.WithLabelValues("failed").Inc()
			s.logger.ErrorContext(ctx, "Search check failed", "search_id", search.ID, "user_id", search.UserID, "error", err)
			continue
		}
		if outcome.Skipped {
			summary.Skipped++
			searchesProcessedCounter.WithLabelValues("skipped").Inc()
			continue
		}
		summary.Succeeded++
		searchesProcessedCounter.WithLabelValues("success").Inc()
	}

	summary.FinishedAt = s.now()
	passesCounter.WithLabelValues(string(trigger), status).Inc()
	s.logger.InfoContext(ctx, "Pass finished",
		"trigger", trigger, "searches", summary.Searches, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "skipped", summary.Skipped, "delivered", summary.Delivered, "duration", summary.Duration())

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.PublishPassSummary(ctx, summary); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish pass summary", "error", err)
		}
	}
	return summary
}

// checkSearch isolates one search; a panic is reported as an error for that search only.
func (s *Scheduler) checkSearch(ctx context.Context, search *domain.Search) (outcome domain.CheckOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while checking search %s: %v", search.ID, r)
		}
	}()
	return s.pipeline.RunSearch(ctx, search, domain.CheckScheduled)
}
