package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rentwatch/golang_services/internal/conversation_service/app"
	"github.com/rentwatch/golang_services/internal/conversation_service/domain"
)

const (
	busyText          = "⏳ Still working on your previous request, please try again."
	unknownButtonText = "⌛ This button is no longer supported."
)

// ErrIgnoredUpdate marks updates that carry no conversation input.
var ErrIgnoredUpdate = errors.New("update carries no conversation input")

var updatesCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rentwatch",
		Subsystem: "telegram",
		Name:      "updates_total",
		Help:      "Total number of bot updates received, by outcome.",
	},
	[]string{"outcome"},
)

// UpdateSource is the long-polling half of tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// EventSubmitter accepts decoded events, typically the conversation engine.
type EventSubmitter interface {
	Submit(ctx context.Context, ev domain.Event) (<-chan error, error)
}

// Responder answers the user when an update cannot be queued.
type Responder interface {
	SendText(ctx context.Context, chatID int64, text string) error
	Acknowledge(ctx context.Context, eventID, alertText string) error
}

// Listener turns bot updates into conversation events.
type Listener struct {
	source      UpdateSource
	engine      EventSubmitter
	responder   Responder
	pollTimeout int
	logger      *slog.Logger
}

func NewListener(source UpdateSource, engine EventSubmitter, responder Responder, pollTimeout time.Duration, logger *slog.Logger) *Listener {
	return &Listener{
		source:      source,
		engine:      engine,
		responder:   responder,
		pollTimeout: int(pollTimeout / time.Second),
		logger:      logger.With("component", "telegram_listener"),
	}
}

// Run polls until ctx is cancelled or the update channel closes.
func (l *Listener) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = l.pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := l.source.GetUpdatesChan(cfg)

	l.logger.Info("Listening for bot updates", "poll_timeout_s", l.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			l.source.StopReceivingUpdates()
			l.logger.Info("Stopped listening for bot updates")
			return nil
		case upd, ok := <-updates:
			if !ok {
				l.logger.Warn("Update channel closed")
				return nil
			}
			l.dispatch(ctx, upd)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, upd tgbotapi.Update) {
	ev, err := EventFromUpdate(upd)
	switch {
	case errors.Is(err, ErrIgnoredUpdate):
		updatesCounter.WithLabelValues("ignored").Inc()
		return
	case errors.Is(err, domain.ErrUnknownCallback):
		updatesCounter.WithLabelValues("unknown_button").Inc()
		l.logger.WarnContext(ctx, "Unknown button payload", "update_id", upd.UpdateID, "error", err)
		l.acknowledge(ctx, ev.EventID, unknownButtonText)
		return
	case err != nil:
		updatesCounter.WithLabelValues("invalid").Inc()
		l.logger.WarnContext(ctx, "Failed to decode update", "update_id", upd.UpdateID, "error", err)
		return
	}

	if _, err := l.engine.Submit(ctx, ev); err != nil {
		updatesCounter.WithLabelValues("rejected").Inc()
		l.logger.WarnContext(ctx, "Event rejected", "user_id", ev.UserID, "kind", ev.Kind.String(), "error", err)
		if !errors.Is(err, app.ErrMailboxFull) {
			return
		}
		if ev.IsCallback() {
			l.acknowledge(ctx, ev.EventID, busyText)
		} else if sendErr := l.responder.SendText(ctx, ev.ChatID, busyText); sendErr != nil {
			l.logger.WarnContext(ctx, "Failed to send busy notice", "user_id", ev.UserID, "error", sendErr)
		}
		return
	}
	updatesCounter.WithLabelValues("accepted").Inc()
}

func (l *Listener) acknowledge(ctx context.Context, eventID, text string) {
	if eventID == "" {
		return
	}
	if err := l.responder.Acknowledge(ctx, eventID, text); err != nil {
		l.logger.WarnContext(ctx, "Failed to acknowledge button press", "error", err)
	}
}

// EventFromUpdate decodes a message or button press. For an unknown button payload it
// returns the partially filled event together with domain.ErrUnknownCallback so the
// press can still be acknowledged.
func EventFromUpdate(upd tgbotapi.Update) (domain.Event, error) {
	if cq := upd.CallbackQuery; cq != nil {
		if cq.From == nil {
			return domain.Event{}, ErrIgnoredUpdate
		}
		ev, err := domain.ParseCallback(cq.Data)
		ev.EventID = cq.ID
		ev.UserID = cq.From.ID
		ev.ChatID = cq.From.ID
		withUser(&ev, cq.From)
		if cq.Message != nil {
			ev.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				ev.ChatID = cq.Message.Chat.ID
			}
		}
		ev.ReceivedAt = time.Now().UTC()
		if err != nil {
			return ev, fmt.Errorf("button %s: %w", cq.ID, err)
		}
		return ev, nil
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return domain.Event{}, ErrIgnoredUpdate
	}
	ev := domain.Event{
		UserID:     msg.From.ID,
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}
	withUser(&ev, msg.From)

	switch {
	case msg.IsCommand():
		ev.Kind = domain.CommandKind(msg.Command())
	case msg.Text != "":
		ev.Kind = domain.KindText
		ev.Text = msg.Text
	default:
		return domain.Event{}, ErrIgnoredUpdate
	}
	return ev, nil
}

func withUser(ev *domain.Event, u *tgbotapi.User) {
	ev.Username = u.UserName
	ev.FirstName = u.FirstName
	ev.LastName = u.LastName
}
