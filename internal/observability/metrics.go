package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	MemoryOps        *prometheus.CounterVec
	ItemsStored      prometheus.Counter
	TrackedUsers     prometheus.Gauge
	OpLatency        *prometheus.HistogramVec
	WatchSubscribers prometheus.Gauge
	WatchEvents      *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec

	ops *opWindow
}

func NewMetrics(namespace string, windowSize int) *Metrics {
	return &Metrics{
		MemoryOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Memory store operations by operation and result.",
		}, []string{"op", "result"}),
		ItemsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_items_stored_total",
			Help:      "Memory items stored since process start.",
		}),
		TrackedUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_tracked_users",
			Help:      "Number of users with at least one memory item.",
		}),
		OpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_operation_latency_ms",
			Help:      "Memory store operation latency in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}, []string{"op"}),
		WatchSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watch_subscribers",
			Help:      "Number of open memory watch subscriptions.",
		}),
		WatchEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "Watch fan-out events by result.",
		}, []string{"result"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ops: newOpWindow(windowSize),
	}
}

// ObserveOperation records one store call in the counters, the latency
// histogram and the rolling window.
func (m *Metrics) ObserveOperation(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ms := float64(d.Microseconds()) / 1000
	m.MemoryOps.WithLabelValues(op, result).Inc()
	if op == "add" && err == nil {
		m.ItemsStored.Inc()
	}
	m.OpLatency.WithLabelValues(op).Observe(ms)
	m.ops.Observe(op, ms, err != nil)
}

func (m *Metrics) SnapshotOperations() OpSnapshot {
	return m.ops.Snapshot()
}

func (m *Metrics) OperationStats(op string) (OpStats, bool) {
	return m.ops.Op(op)
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
