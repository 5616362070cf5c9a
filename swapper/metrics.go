package swapper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of a mediator.
type Metrics struct {
	SwapsTotal    *prometheus.CounterVec
	SwapDuration  prometheus.Histogram
	RouterUpdates prometheus.Counter
	ErrorsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the mediator metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		SwapsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "swapper",
			Name:      "swaps_total",
			Help:      "Total number of swap attempts, labeled by result.",
		}, []string{"result"}),

		SwapDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Subsystem: "swapper",
			Name:      "swap_duration_seconds",
			Help:      "Time taken to execute a swap transaction, successful or not.",
			Buckets:   prometheus.DefBuckets,
		}),

		RouterUpdates: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: "swapper",
			Name:      "router_updates_total",
			Help:      "Total number of committed router reference updates.",
		}),

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "swapper",
			Name:      "errors_total",
			Help:      "Total number of failed mediator operations, labeled by error type.",
		}, []string{"type"}),
	}
}
