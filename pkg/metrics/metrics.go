// Package metrics declares the Prometheus collectors shared by the session
// cache layers. Collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache metrics
var (
	// CacheLookupsTotal counts two-level cache reads by the layer that answered.
	// layer is "local", "global" or "none" (miss).
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphsession_cache_lookups_total",
			Help: "Total cache lookups by cache name and answering layer",
		},
		[]string{"cache", "layer"},
	)

	// CachePromotionsTotal counts entries copied from a session layer into the
	// global layer at commit.
	CachePromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphsession_cache_promotions_total",
			Help: "Total entries promoted from session-local to global cache",
		},
		[]string{"cache"},
	)

	// CacheEvictionsTotal counts global entries dropped, by reason
	// ("capacity" or "deleted").
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphsession_cache_evictions_total",
			Help: "Total global cache evictions by reason",
		},
		[]string{"cache", "reason"},
	)
)

// Scope metrics
var (
	// CommitActionsTotal counts per-element commit outcomes by element kind and
	// owed action.
	CommitActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphsession_commit_actions_total",
			Help: "Total element commits by kind and action",
		},
		[]string{"kind", "action"},
	)

	// CommitFailuresTotal counts element commits whose remote call failed.
	CommitFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphsession_commit_failures_total",
			Help: "Total failed element commits by kind and action",
		},
		[]string{"kind", "action"},
	)

	// RemoteCallsTotal counts calls into a remote element handler.
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphsession_remote_calls_total",
			Help: "Total remote handler calls by kind, operation and result",
		},
		[]string{"kind", "op", "result"},
	)

	// RemoteCallDuration observes remote handler latency.
	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphsession_remote_call_duration_seconds",
			Help:    "Remote handler call latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"kind", "op"},
	)

	// TrackerFastPathTotal counts id-set queries answered without the remote
	// store ("hit") or that had to ask it ("miss").
	TrackerFastPathTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphsession_tracker_queries_total",
			Help: "Existence-set queries by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// Session metrics
var (
	// SessionsActive is the number of open sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphsession_sessions_active",
			Help: "Number of open sessions",
		},
	)

	// SessionOutcomesTotal counts commits and rollbacks by result.
	SessionOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphsession_session_outcomes_total",
			Help: "Session commits and rollbacks by result",
		},
		[]string{"op", "result"},
	)
)

// Result returns the label value for err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
