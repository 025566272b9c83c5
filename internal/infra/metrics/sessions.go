package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(sessionRefreshTotal, sessionsBlockedTotal, sessionAcquireWaitMs)
}

var sessionRefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "session_refresh_total",
		Help: "Re-authentication attempts by result.",
	},
	[]string{"result"}, // 'ok', 'failed', 'blocked'
)

var sessionsBlockedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "sessions_blocked_total",
		Help: "Accounts marked blocked by the platform.",
	},
)

var sessionAcquireWaitMs = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "session_acquire_wait_ms",
		Help:    "Time spent waiting for the per-account session lock.",
		Buckets: []float64{0, 10, 50, 250, 1000, 5000, 30000},
	},
)

func IncSessionRefresh(result string) {
	sessionRefreshTotal.WithLabelValues(norm(result)).Inc()
}

func IncSessionBlocked() { sessionsBlockedTotal.Inc() }

func ObserveSessionAcquireWait(ms float64) { sessionAcquireWaitMs.Observe(ms) }
