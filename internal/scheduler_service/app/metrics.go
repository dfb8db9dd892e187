package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentwatch",
			Subsystem: "scheduler",
			Name:      "passes_total",
			Help:      "Total number of scheduler passes by trigger and outcome.",
		},
		[]string{"trigger", "status"},
	)
	passDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rentwatch",
			Subsystem: "scheduler",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a full pass over active searches.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)
	searchesProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentwatch",
			Subsystem: "scheduler",
			Name:      "searches_processed_total",
			Help:      "Searches processed by passes, by outcome.",
		},
		[]string{"status"},
	)
)
