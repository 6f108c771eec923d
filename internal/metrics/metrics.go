package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIndexedTotal tracks decoded events persisted per event name.
	EventsIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_events_indexed_total",
			Help: "Total number of events handled by the ingestion path",
		},
		[]string{"event", "source"},
	)

	// EventHandlingErrorsTotal tracks per-event handling failures.
	EventHandlingErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_event_handling_errors_total",
			Help: "Total number of events whose handling failed",
		},
		[]string{"event"},
	)

	// DuplicateEventsTotal tracks suppressed raw-event duplicates.
	DuplicateEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_duplicate_events_total",
			Help: "Total number of raw events suppressed as duplicates",
		},
		[]string{"event"},
	)

	// OrphanUpdatesTotal tracks settlement events that matched no open row.
	OrphanUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_orphan_updates_total",
			Help: "Total number of settlement updates that matched no open row",
		},
		[]string{"aggregate"},
	)

	// SubscriptionRestartsTotal tracks live log-subscription reopen
	// attempts after a stream failure.
	SubscriptionRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_subscription_restarts_total",
			Help: "Total number of log subscription reopen attempts",
		},
		[]string{"outcome"},
	)

	// CranksTotal tracks crank submissions by phase and outcome.
	CranksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_cranks_total",
			Help: "Total number of crank executions",
		},
		[]string{"phase", "outcome"},
	)

	// CrankDuration tracks end-to-end crank latency including
	// finalization.
	CrankDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otc_crank_duration_seconds",
			Help:    "Crank execution latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"phase"},
	)

	// CrankCandidates tracks the candidate count per phase per iteration.
	CrankCandidates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otc_crank_candidates",
			Help: "Number of crank candidates found in the last iteration",
		},
		[]string{"phase"},
	)

	// DBConnectionPoolUsage tracks database pool saturation.
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otc_db_connection_pool_usage_percent",
			Help: "Percentage of database connections in use",
		},
	)
)
