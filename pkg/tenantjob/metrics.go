package tenantjob

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type jobMetrics struct {
	tenantsTotal *prometheus.CounterVec
	runSeconds   prometheus.Histogram
}

var metricsSingleton = sync.OnceValue(func() *jobMetrics {
	return &jobMetrics{
		tenantsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenant_job",
			Name:      "tenants_total",
			Help:      "Per-tenant job executions by outcome.",
		}, []string{"result"}),
		runSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tenant_job",
			Name:      "run_seconds",
			Help:      "Wall-clock duration of whole tenant job runs.",
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.5,
				1, 5, 10, 30, 60, 300,
			},
		}),
	}
})

func recordRun(summary *Summary) {
	m := metricsSingleton()
	m.tenantsTotal.WithLabelValues("succeeded").Add(float64(summary.Succeeded))
	m.tenantsTotal.WithLabelValues("failed").Add(float64(summary.Failed))
	m.runSeconds.Observe(summary.Duration.Seconds())
}
