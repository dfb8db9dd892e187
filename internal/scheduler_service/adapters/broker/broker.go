// Package broker connects the scheduler to the message broker: manual pass triggers come in,
// pass summaries go out.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/rentwatch/golang_services/internal/scheduler_service/app"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// QueueGroup makes replicas share trigger messages.
const QueueGroup = "rentwatch-scheduler"

type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, subject, queue string, handler func(msg *nats.Msg)) (*nats.Subscription, error)
}

type PassTrigger interface {
	Trigger(ctx context.Context, trigger app.TriggerSource) error
}

// SummaryPublisher publishes finished passes as JSON.
type SummaryPublisher struct {
	client  Publisher
	subject string
}

func NewSummaryPublisher(client Publisher, subject string) *SummaryPublisher {
	return &SummaryPublisher{client: client, subject: subject}
}

func (p *SummaryPublisher) PublishPassSummary(ctx context.Context, summary app.PassSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal pass summary: %w", err)
	}
	return p.client.Publish(ctx, p.subject, data)
}

// TriggerReply is sent back when a trigger message carries a reply subject.
type TriggerReply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TriggerSubscriber starts a pass for every message on its subject.
type TriggerSubscriber struct {
	ctx     context.Context
	trigger PassTrigger
	logger  *slog.Logger
}

// SubscribeTrigger registers the trigger handler until ctx is done.
func SubscribeTrigger(ctx context.Context, sub Subscriber, subject string, trigger PassTrigger, logger *slog.Logger) (*TriggerSubscriber, error) {
	ts := &TriggerSubscriber{
		ctx:     ctx,
		trigger: trigger,
		logger:  logger.With("component", "nats_trigger", "subject", subject),
	}
	if _, err := sub.Subscribe(ctx, subject, QueueGroup, ts.Handle); err != nil {
		return nil, err
	}
	ts.logger.InfoContext(ctx, "Listening for manual pass triggers")
	return ts, nil
}

func (ts *TriggerSubscriber) Handle(msg *nats.Msg) {
	reply := TriggerReply{Status: "started"}
	err := ts.trigger.Trigger(ts.ctx, app.TriggerMessage)
	switch {
	case errors.Is(err, domain.ErrPassInProgress):
		reply = TriggerReply{Status: "busy"}
		ts.logger.InfoContext(ts.ctx, "Trigger ignored, pass already running")
	case err != nil:
		reply = TriggerReply{Status: "error", Error: err.Error()}
		ts.logger.ErrorContext(ts.ctx, "Trigger failed", "error", err)
	default:
		ts.logger.InfoContext(ts.ctx, "Pass triggered from broker")
	}

	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		ts.logger.WarnContext(ts.ctx, "Failed to reply to trigger", "error", err)
	}
}
