package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chain_activity",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chain_activity",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Upstream (indexer / RPC) metrics ───────────────────────────────────

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total upstream calls per call type and outcome.",
	}, []string{"call", "status"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chain_activity",
		Subsystem: "upstream",
		Name:      "duration_seconds",
		Help:      "Upstream call latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"call"})

	ChainHead = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chain_activity",
		Subsystem: "upstream",
		Name:      "chain_head",
		Help:      "Latest block height reported by the indexer.",
	})
)

// ── Aggregation metrics ────────────────────────────────────────────────

var (
	FetchStrategyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "fetch",
		Name:      "strategy_total",
		Help:      "Contract fetches per strategy that produced the result.",
	}, []string{"strategy"})

	PagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "fetch",
		Name:      "pages_total",
		Help:      "Total indexer pages walked.",
	})

	DegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "fetch",
		Name:      "degraded_total",
		Help:      "Units of work that degraded, by error kind.",
	}, []string{"kind"})

	ReportRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "report",
		Name:      "runs_total",
		Help:      "Report runs per kind and outcome.",
	}, []string{"report", "status"})

	ReportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chain_activity",
		Subsystem: "report",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of a report run.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"report"})
)

// ── Liquidity & delivery metrics ───────────────────────────────────────

var (
	LiquidityBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chain_activity",
		Subsystem: "liquidity",
		Name:      "balance",
		Help:      "Current bridge liquidity in token units.",
	}, []string{"bridge", "symbol"})

	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Total messages successfully delivered.",
	}, []string{"type"})

	AlertsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "alerts",
		Name:      "failed_total",
		Help:      "Total message delivery failures.",
	}, []string{"type"})

	AlertsDeduplicatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_activity",
		Subsystem: "alerts",
		Name:      "deduplicated_total",
		Help:      "Total alerts suppressed by deduplication.",
	}, []string{"type"})

	SubscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chain_activity",
		Subsystem: "business",
		Name:      "subscriptions_active",
		Help:      "Number of active subscriptions per event.",
	}, []string{"event_name"})
)
