package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(contentCallsLatencyMs, contentTokensIn)
}

var contentCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "content_calls_latency_ms",
		Help:    "Content generation call latency distribution in milliseconds.",
		Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
	},
	[]string{"model", "success"},
)

var contentTokensIn = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "content_tokens_in",
		Help: "Sum of prompt tokens sent to the generator per model.",
	},
	[]string{"model"},
)

func ObserveContentCall(model string, tokensIn, latencyMs int, success bool) {
	contentTokensIn.WithLabelValues(norm(model)).Add(float64(tokensIn))
	contentCallsLatencyMs.WithLabelValues(norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
