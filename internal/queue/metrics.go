package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// TasksProcessed counts handled tasks by type and result (ok, retry, skipped).
	TasksProcessed *prometheus.CounterVec
	// TaskDuration observes handler latency in milliseconds.
	TaskDuration *prometheus.HistogramVec
	// QueueSize exposes pending and archived counts sampled by the admin stats endpoint.
	QueueSize *prometheus.GaugeVec
)

// MustRegisterMetrics registers task collectors. Tasks handled before
// registration skip telemetry.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		processed := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Background tasks handled grouped by type and result",
		}, []string{"type", "result"})
		duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_ms",
			Help:      "Background task handler latency in milliseconds",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
		}, []string{"type"})
		size := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_size",
			Help:      "Tasks per queue and state",
		}, []string{"queue", "state"})

		TasksProcessed = register(reg, processed).(*prometheus.CounterVec)
		TaskDuration = register(reg, duration).(*prometheus.HistogramVec)
		QueueSize = register(reg, size).(*prometheus.GaugeVec)
	})
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
