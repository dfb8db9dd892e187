package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/rentwatch/golang_services/internal/notification_service/messenger"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// Dispatcher delivers listings one by one, paced by a shared limiter.
type Dispatcher struct {
	channel messenger.Channel
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewDispatcher spaces consecutive sends by at least delay. A zero delay disables pacing.
func NewDispatcher(channel messenger.Channel, delay time.Duration, logger *slog.Logger) *Dispatcher {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Dispatcher{
		channel: channel,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "dispatcher"),
	}
}

// Send delivers listings in order. A failed listing does not stop the batch and is
// reported in Failed; only Confirmed listings may be recorded as sent. Once ctx is
// done the remaining listings are reported as failed without being attempted.
func (d *Dispatcher) Send(ctx context.Context, chatID int64, listings []domain.Listing) domain.DispatchResult {
	var res domain.DispatchResult
	for i, l := range listings {
		if err := d.limiter.Wait(ctx); err != nil {
			d.logger.WarnContext(ctx, "Dispatch interrupted", "chat_id", chatID, "remaining", len(listings)-i, "error", err)
			res.Failed = append(res.Failed, listings[i:]...)
			listingsDispatchedCounter.WithLabelValues("failed").Add(float64(len(listings) - i))
			break
		}

		if err := d.deliver(ctx, chatID, l); err != nil {
			d.logger.WarnContext(ctx, "Listing delivery failed", "chat_id", chatID, "external_id", l.ExternalID, "error", err)
			res.Failed = append(res.Failed, l)
			listingsDispatchedCounter.WithLabelValues("failed").Inc()
			continue
		}
		res.Confirmed = append(res.Confirmed, l)
		listingsDispatchedCounter.WithLabelValues("confirmed").Inc()
	}

	d.logger.InfoContext(ctx, "Dispatch finished", "chat_id", chatID, "confirmed", len(res.Confirmed), "failed", len(res.Failed))
	return res
}

// SendNotice sends a plain text message through the same pacing.
func (d *Dispatcher) SendNotice(ctx context.Context, chatID int64, text string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	timer := prometheus.NewTimer(sendDurationHist.WithLabelValues("notice"))
	defer timer.ObserveDuration()
	return d.channel.SendText(ctx, chatID, text)
}

func (d *Dispatcher) deliver(ctx context.Context, chatID int64, l domain.Listing) error {
	text := FormatListing(l)
	photos := l.PhotoURLs
	if len(photos) > domain.MaxPhotos {
		photos = photos[:domain.MaxPhotos]
	}

	switch len(photos) {
	case 0:
		timer := prometheus.NewTimer(sendDurationHist.WithLabelValues("text"))
		defer timer.ObserveDuration()
		return d.channel.SendText(ctx, chatID, text)
	case 1:
		timer := prometheus.NewTimer(sendDurationHist.WithLabelValues("photo"))
		defer timer.ObserveDuration()
		return d.channel.SendPhoto(ctx, chatID, text, photos[0])
	default:
		timer := prometheus.NewTimer(sendDurationHist.WithLabelValues("photo_group"))
		defer timer.ObserveDuration()
		return d.channel.SendPhotoGroup(ctx, chatID, text, photos)
	}
}
