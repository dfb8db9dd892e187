package messagebroker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSClient wraps a core NATS connection.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSClient connects to NATS with infinite reconnects.
// natsURL example: "nats://localhost:4222"
func NewNATSClient(natsURL, appName string, logger *slog.Logger) (*NATSClient, error) {
	log := logger.With("component", "nats")
	nc, err := nats.Connect(natsURL,
		nats.Name(appName),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed", "last_error", nc.LastError())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSClient{conn: nc, logger: log}, nil
}

// Publish sends data on subject. The context is only checked before publishing,
// core NATS publishes are fire-and-forget.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if c == nil || c.conn == nil {
		return errors.New("nats client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers handler on subject. A non-empty queue joins a queue group so only one
// replica receives each message. The subscription is drained when ctx is cancelled.
func (c *NATSClient) Subscribe(ctx context.Context, subject, queue string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	if c == nil || c.conn == nil {
		return nil, errors.New("nats client not initialized")
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue != "" {
		sub, err = c.conn.QueueSubscribe(subject, queue, handler)
	} else {
		sub, err = c.conn.Subscribe(subject, handler)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			c.logger.Warn("Failed to drain NATS subscription", "subject", subject, "error", err)
		}
	}()
	return sub, nil
}

// Close drains pending messages and closes the connection.
func (c *NATSClient) Close() {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed", "error", err)
		c.conn.Close()
	}
}
