package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TripsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cargo_dispatch", Name: "trips_created_total", Help: "Total trips booked"})

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cargo_dispatch", Name: "status_transitions_total", Help: "Successful trip status transitions"},
		[]string{"from", "to"},
	)

	VerificationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cargo_dispatch", Name: "verification_checks_total", Help: "Two-sided verification outcomes"},
		[]string{"outcome"},
	)

	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cargo_dispatch", Name: "settlements_total", Help: "Statements settled"})
	TripsSettled     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cargo_dispatch", Name: "trips_settled_total", Help: "Trips flagged commission_settled"})
	DriversAvailable = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "cargo_dispatch", Name: "drivers_available", Help: "Drivers currently within the presence window"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cargo_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cargo_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
