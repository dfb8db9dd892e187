package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentwatch/golang_services/internal/conversation_service/domain"
	"github.com/rentwatch/golang_services/internal/notification_service/messenger"
	searchdomain "github.com/rentwatch/golang_services/internal/search_service/domain"
)

var (
	// ErrMailboxFull is returned by Submit when a user has too many queued events.
	ErrMailboxFull = errors.New("conversation mailbox full")
	// ErrEngineClosed is returned once Close has been called.
	ErrEngineClosed = errors.New("conversation engine closed")
	// ErrInvalidEvent is returned for events without a user or with an undeclared kind.
	ErrInvalidEvent = errors.New("invalid conversation event")
)

// Registry is the part of the search registry the conversation needs.
type Registry interface {
	EnsureUser(ctx context.Context, user *searchdomain.User) (*searchdomain.User, error)
	CreateSearch(ctx context.Context, user *searchdomain.User, criteria searchdomain.Criteria) (*searchdomain.Search, error)
	PauseSearch(ctx context.Context, id uuid.UUID) error
	ResumeSearch(ctx context.Context, id uuid.UUID) error
	UpdateCriteria(ctx context.Context, id uuid.UUID, criteria searchdomain.Criteria) error
	DeleteSearch(ctx context.Context, id uuid.UUID) error
	GetSearch(ctx context.Context, id uuid.UUID) (*searchdomain.Search, error)
	CurrentSearch(ctx context.Context, userID int64) (*searchdomain.Search, error)
	ActiveSearch(ctx context.Context, userID int64) (*searchdomain.Search, error)
}

// SentCounter reports how many listings were delivered for a search.
type SentCounter interface {
	SentCount(ctx context.Context, searchID uuid.UUID) (int, error)
}

// SearchRunner runs one fetch-dedup-dispatch check for a search.
type SearchRunner interface {
	RunSearch(ctx context.Context, search *searchdomain.Search, mode searchdomain.CheckMode) (searchdomain.CheckOutcome, error)
}

// Config holds configuration specific to the conversation engine.
type Config struct {
	Districts      []string
	IdleTTL        time.Duration
	MailboxSize    int
	CheckInterval  time.Duration
	HandlerTimeout time.Duration
	// CheckTimeout bounds the immediate check that follows search creation.
	CheckTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 32
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 5 * time.Minute
	}
}

type handlerFunc func(ctx context.Context, s *domain.Session, ev domain.Event) error

type envelope struct {
	ev   domain.Event
	done chan error
}

type mailbox struct {
	events chan envelope
}

// Engine drives the per-user wizard. Each user with recent activity has one actor goroutine
// that owns the user's session and applies that user's events in arrival order.
type Engine struct {
	registry Registry
	ledger   SentCounter
	runner   SearchRunner
	channel  messenger.Channel
	cfg      Config
	catalog  map[string]string
	logger   *slog.Logger
	now      func() time.Time
	handlers [domain.NumEventKinds]handlerFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	mailboxes map[int64]*mailbox
	closed    bool
}

func NewEngine(
	registry Registry,
	ledger SentCounter,
	runner SearchRunner,
	channel messenger.Channel,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	catalog := make(map[string]string, len(cfg.Districts))
	for _, d := range cfg.Districts {
		catalog[normalizeDistrict(d)] = d
	}

	e := &Engine{
		registry:  registry,
		ledger:    ledger,
		runner:    runner,
		channel:   channel,
		cfg:       cfg,
		catalog:   catalog,
		logger:    logger.With("component", "conversation_engine"),
		now:       func() time.Time { return time.Now().UTC() },
		ctx:       ctx,
		cancel:    cancel,
		mailboxes: make(map[int64]*mailbox),
	}
	e.handlers = e.dispatchTable()
	return e
}

// Submit queues ev on its user's mailbox, starting the user's actor when needed.
// It never blocks on handling; the returned channel yields the handler's result.
func (e *Engine) Submit(ctx context.Context, ev domain.Event) (<-chan error, error) {
	if ev.UserID == 0 || !ev.Kind.Valid() {
		return nil, fmt.Errorf("%w: user=%d kind=%d", ErrInvalidEvent, ev.UserID, ev.Kind)
	}
	if ev.ChatID == 0 {
		ev.ChatID = ev.UserID
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = e.now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}

	mb, ok := e.mailboxes[ev.UserID]
	if !ok {
		mb = &mailbox{events: make(chan envelope, e.cfg.MailboxSize)}
		e.mailboxes[ev.UserID] = mb
		activeSessionsGauge.Inc()
		e.wg.Add(1)
		go e.serve(ev.UserID, mb)
	}

	env := envelope{ev: ev, done: make(chan error, 1)}
	select {
	case mb.events <- env:
		return env.done, nil
	default:
		e.logger.WarnContext(ctx, "Mailbox full, dropping event", "user_id", ev.UserID, "kind", ev.Kind.String())
		return nil, ErrMailboxFull
	}
}

// ActiveSessions is the number of users with a live actor.
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.mailboxes)
}

// Close stops accepting events, cancels in-flight work and waits for all actors
// and immediate checks to return.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) serve(userID int64, mb *mailbox) {
	defer e.wg.Done()
	session := domain.NewSession(userID)
	log := e.logger.With("user_id", userID)

	idle := time.NewTimer(e.cfg.IdleTTL)
	defer idle.Stop()

	for {
		select {
		case env := <-mb.events:
			env.done <- e.handle(session, env.ev)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(e.cfg.IdleTTL)

		case <-idle.C:
			e.mu.Lock()
			if len(mb.events) > 0 {
				e.mu.Unlock()
				idle.Reset(e.cfg.IdleTTL)
				continue
			}
			delete(e.mailboxes, userID)
			activeSessionsGauge.Dec()
			e.mu.Unlock()
			log.Debug("Session reaped after inactivity", "state", session.State.String())
			return

		case <-e.ctx.Done():
			for {
				select {
				case env := <-mb.events:
					env.done <- ErrEngineClosed
				default:
					return
				}
			}
		}
	}
}

// handle applies one event. Unexpected failures reset the session and are reported
// to the user; button presses are always acknowledged.
func (e *Engine) handle(s *domain.Session, ev domain.Event) (err error) {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.HandlerTimeout)
	defer cancel()
	log := e.logger.With("user_id", ev.UserID, "kind", ev.Kind.String())

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s: %v", ev.Kind, r)
		}
		alert := ""
		if err != nil {
			log.ErrorContext(ctx, "Event handling failed", "state", s.State.String(), "error", err)
			s.Reset()
			alert = alertError
			if !ev.IsCallback() {
				e.reply(ctx, s, msgSomethingWentWrong)
			}
		}
		if ev.IsCallback() {
			if ackErr := e.channel.Acknowledge(ctx, ev.EventID, alert); ackErr != nil {
				log.WarnContext(ctx, "Failed to acknowledge button press", "error", ackErr)
			}
		}
	}()

	eventsCounter.WithLabelValues(ev.Kind.String()).Inc()
	s.ChatID = ev.ChatID
	if err := e.ensureUser(ctx, s, ev); err != nil {
		return err
	}

	log.DebugContext(ctx, "Handling event", "state", s.State.String())
	return e.handlers[ev.Kind](ctx, s, ev)
}

func (e *Engine) ensureUser(ctx context.Context, s *domain.Session, ev domain.Event) error {
	if s.UserKnown && ev.Kind != domain.KindStart {
		return nil
	}
	user, err := e.registry.EnsureUser(ctx, &searchdomain.User{
		ID:        ev.UserID,
		ChatID:    ev.ChatID,
		Username:  ev.Username,
		FirstName: ev.FirstName,
		LastName:  ev.LastName,
	})
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	s.User = *user
	s.UserKnown = true
	return nil
}

func (e *Engine) reply(ctx context.Context, s *domain.Session, text string) {
	if err := e.channel.SendText(ctx, s.ChatID, text); err != nil {
		e.logger.WarnContext(ctx, "Failed to send reply", "user_id", s.UserID, "error", err)
	}
}

func (e *Engine) replyMenu(ctx context.Context, s *domain.Session, text string, kb messenger.Keyboard) {
	if err := e.channel.SendMenu(ctx, s.ChatID, text, kb); err != nil {
		e.logger.WarnContext(ctx, "Failed to send menu", "user_id", s.UserID, "error", err)
	}
}

// startImmediateCheck runs the first check of a new search outside the user's actor,
// so the user's next events are not queued behind the fetch.
func (e *Engine) startImmediateCheck(search *searchdomain.Search) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.CheckTimeout)
		defer cancel()

		chat := &domain.Session{UserID: search.UserID, ChatID: search.ChatID}
		outcome, err := e.runner.RunSearch(ctx, search, searchdomain.CheckImmediate)
		switch {
		case err != nil:
			e.logger.WarnContext(ctx, "Immediate check failed", "search_id", search.ID, "error", err)
			e.reply(ctx, chat, fetchFailedText(e.cfg.CheckInterval))
		case outcome.Skipped:
			// A pass is checking this search right now and delivers whatever it finds.
			e.reply(ctx, chat, keepCheckingText(e.cfg.CheckInterval))
		case outcome.New == 0:
			e.reply(ctx, chat, nothingFoundText(e.cfg.CheckInterval))
		default:
			e.reply(ctx, chat, keepCheckingText(e.cfg.CheckInterval))
		}
	}()
}
