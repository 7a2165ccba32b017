package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audit run counters and histograms. Labels stay low-cardinality: no wallet,
// token, or spender addresses.

var (
	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total chain RPC calls by method and status",
	}, []string{"method", "status"})

	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "approval_audit",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Chain RPC call latency including retries",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method"})

	RPCRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "rpc",
		Name:      "retries_total",
		Help:      "Total RPC retries after transient failures",
	}, []string{"method"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times RPC calls waited for rate limiter",
	}, []string{"endpoint"})

	RPCBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "rpc",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions",
	}, []string{"from", "to"})

	// Engine
	WorkItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "engine",
		Name:      "work_items_total",
		Help:      "Resolved work items by mode and outcome",
	}, []string{"mode", "outcome"})

	WorkItemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "approval_audit",
		Subsystem: "engine",
		Name:      "work_item_duration_seconds",
		Help:      "Work item resolution duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"mode"})

	WavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "engine",
		Name:      "waves_total",
		Help:      "Executed scheduler waves",
	}, []string{"mode"})

	TokenMetadataDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "engine",
		Name:      "token_metadata_degraded_total",
		Help:      "Tokens whose metadata fell back to placeholder values",
	})

	// Discovery
	DiscoveryQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "discovery",
		Name:      "queries_total",
		Help:      "Approval log discovery queries by status",
	}, []string{"status"})

	DiscoveredSpenders = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "discovery",
		Name:      "spenders_total",
		Help:      "Distinct spenders discovered per (wallet, token) pair, summed",
	})

	// Results
	ApprovalRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "results",
		Name:      "approval_records_total",
		Help:      "Approval records produced",
	})

	InfiniteApprovalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "results",
		Name:      "infinite_approvals_total",
		Help:      "Approval records with an infinite allowance",
	})

	ProgressPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "approval_audit",
		Subsystem: "progress",
		Name:      "percent",
		Help:      "Last reported progress percentage of the running audit",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approval_audit",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by the cooldown window",
	}, []string{"channel", "type"})
)
