package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(tasksProcessedTotal, taskRetriesTotal, taskDurationMs, checkpointWritesTotal)
}

var tasksProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tasks_processed_total",
		Help: "Total number of tasks driven to a terminal state, by kind and outcome.",
	},
	[]string{"kind", "outcome"}, // 'completed', 'failed', 'skipped'
)

var taskRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "task_retries_total",
		Help: "Total number of requeue-for-retry events by kind.",
	},
	[]string{"kind"},
)

var taskDurationMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "task_duration_ms",
		Help:    "Wall time from claim to terminal state in milliseconds.",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 15000, 60000, 300000},
	},
	[]string{"kind"},
)

var checkpointWritesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkpoint_writes_total",
		Help: "Durable checkpoint appends by task state.",
	},
	[]string{"state"},
)

func IncTaskProcessed(kind, outcome string) {
	tasksProcessedTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}

func IncTaskRetry(kind string) {
	taskRetriesTotal.WithLabelValues(norm(kind)).Inc()
}

func ObserveTaskDuration(kind string, ms float64) {
	taskDurationMs.WithLabelValues(norm(kind)).Observe(ms)
}

func IncCheckpointWrite(state string) {
	checkpointWritesTotal.WithLabelValues(norm(state)).Inc()
}
