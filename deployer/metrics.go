package deployer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the coordinator.
type Metrics struct {
	DeploymentsTotal *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DeploymentsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "deployer",
			Name:      "deployments_total",
			Help:      "Total number of successful deploy-or-upgrade runs, labeled by environment and path.",
		}, []string{"environment", "path"}),

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "deployer",
			Name:      "errors_total",
			Help:      "Total number of failed deploy-or-upgrade runs, labeled by environment and stage.",
		}, []string{"environment", "stage"}),
	}
}
