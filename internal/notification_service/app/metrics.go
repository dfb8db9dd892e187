package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	listingsDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentwatch",
			Subsystem: "dispatch",
			Name:      "listings_total",
			Help:      "Listings handed to the messaging channel, by outcome.",
		},
		[]string{"status"}, // confirmed, failed
	)

	sendDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rentwatch",
			Subsystem: "dispatch",
			Name:      "send_duration_seconds",
			Help:      "Duration of a single channel send.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"}, // text, photo, photo_group, notice
	)
)
