package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(rateWaitMs, ratePenaltiesTotal)
}

var rateWaitMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "rate_governor_wait_ms",
		Help:    "Time Admit callers spent suspended, in milliseconds.",
		Buckets: []float64{0, 50, 250, 1000, 5000, 30000, 120000, 600000, 3600000},
	},
	[]string{"kind"},
)

var ratePenaltiesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_governor_penalties_total",
		Help: "Cooldowns imposed after throttling or detection signals.",
	},
	[]string{"kind"},
)

func ObserveRateWait(kind string, ms float64) {
	rateWaitMs.WithLabelValues(norm(kind)).Observe(ms)
}

func IncRatePenalty(kind string) {
	ratePenaltiesTotal.WithLabelValues(norm(kind)).Inc()
}
