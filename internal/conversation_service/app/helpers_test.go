package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rentwatch/golang_services/internal/conversation_service/domain"
	"github.com/rentwatch/golang_services/internal/notification_service/messenger"
	searchapp "github.com/rentwatch/golang_services/internal/search_service/app"
	searchdomain "github.com/rentwatch/golang_services/internal/search_service/domain"
	"github.com/rentwatch/golang_services/internal/search_service/repository/memory"
)

var testDistricts = []string{"Ruzafa", "Benimaclet", "El Carmen", "Campanar"}

type sentMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  messenger.Keyboard
}

type ack struct {
	EventID string
	Alert   string
}

// recordingChannel keeps every outgoing message. When gate is set, SendText and SendMenu
// signal entered and then block until gate is closed.
type recordingChannel struct {
	mu       sync.Mutex
	messages []sentMessage
	acks     []ack
	gate     chan struct{}
	entered  chan struct{}
}

func (c *recordingChannel) wait() {
	if c.gate == nil {
		return
	}
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-c.gate
}

func (c *recordingChannel) SendText(_ context.Context, chatID int64, text string) error {
	c.wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (c *recordingChannel) SendMenu(_ context.Context, chatID int64, text string, kb messenger.Keyboard) error {
	c.wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, sentMessage{ChatID: chatID, Text: text, Keyboard: kb})
	return nil
}

func (c *recordingChannel) UpdateMenu(_ context.Context, chatID int64, messageID int, text string, kb messenger.Keyboard) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, sentMessage{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (c *recordingChannel) SendPhoto(context.Context, int64, string, string) error { return nil }

func (c *recordingChannel) SendPhotoGroup(context.Context, int64, string, []string) error {
	return nil
}

func (c *recordingChannel) Acknowledge(_ context.Context, eventID, alertText string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks = append(c.acks, ack{EventID: eventID, Alert: alertText})
	return nil
}

func (c *recordingChannel) last() sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return sentMessage{}
	}
	return c.messages[len(c.messages)-1]
}

func (c *recordingChannel) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Text)
	}
	return out
}

func (c *recordingChannel) sawText(substr string) bool {
	for _, t := range c.texts() {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}

func (c *recordingChannel) ackList() []ack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ack(nil), c.acks...)
}

// MockRunner is a mock type for the SearchRunner interface.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunSearch(ctx context.Context, search *searchdomain.Search, mode searchdomain.CheckMode) (searchdomain.CheckOutcome, error) {
	args := m.Called(ctx, search, mode)
	return args.Get(0).(searchdomain.CheckOutcome), args.Error(1)
}

type engineTestComponents struct {
	engine   *Engine
	channel  *recordingChannel
	runner   *MockRunner
	registry *searchapp.SearchRegistry
	ledger   *searchapp.DedupLedger
}

func setupEngineTest(t *testing.T, cfg Config) engineTestComponents {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	registry := searchapp.NewSearchRegistry(store.Searches(), store.Users(), logger)
	ledger := searchapp.NewDedupLedger(store.SentListings(), logger)
	channel := &recordingChannel{}
	runner := new(MockRunner)

	if cfg.Districts == nil {
		cfg.Districts = testDistricts
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Hour
	}
	engine := NewEngine(registry, ledger, runner, channel, cfg, logger)
	t.Cleanup(engine.Close)

	return engineTestComponents{
		engine:   engine,
		channel:  channel,
		runner:   runner,
		registry: registry,
		ledger:   ledger,
	}
}

// send submits ev and waits for its handler to finish.
func (c engineTestComponents) send(t *testing.T, ev domain.Event) {
	t.Helper()
	done, err := c.engine.Submit(context.Background(), ev)
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("event %s was not handled in time", ev.Kind)
	}
}

func (c engineTestComponents) existingSearch(t *testing.T, userID int64, criteria searchdomain.Criteria) *searchdomain.Search {
	t.Helper()
	ctx := context.Background()
	user, err := c.registry.EnsureUser(ctx, &searchdomain.User{ID: userID, ChatID: userID})
	require.NoError(t, err)
	search, err := c.registry.CreateSearch(ctx, user, criteria)
	require.NoError(t, err)
	return search
}

func text(userID int64, s string) domain.Event {
	return domain.Event{Kind: domain.KindText, UserID: userID, Text: s}
}

func command(userID int64, kind domain.EventKind) domain.Event {
	return domain.Event{Kind: kind, UserID: userID}
}

func press(userID int64, kind domain.EventKind) domain.Event {
	return domain.Event{Kind: kind, UserID: userID, EventID: "cb-" + kind.String(), MessageID: 7}
}
