package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentwatch",
			Subsystem: "conversation",
			Name:      "events_total",
			Help:      "Conversation events handled, by kind.",
		},
		[]string{"kind"},
	)
	activeSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rentwatch",
			Subsystem: "conversation",
			Name:      "active_sessions",
			Help:      "Users with a live session actor.",
		},
	)
)
