package lock

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAcquired = "acquired"
	resultBusy     = "busy"
	resultError    = "error"
)

type lockMetrics struct {
	acquireTotal *prometheus.CounterVec
	waitSeconds  prometheus.Histogram
}

var metricsSingleton = sync.OnceValue(func() *lockMetrics {
	return &lockMetrics{
		acquireTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lock",
			Name:      "acquire_total",
			Help:      "Total number of lock acquisition attempts by outcome.",
		}, []string{"result"}),
		waitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for successful lock acquisitions.",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05,
				0.1, 0.25, 0.5,
				1, 2.5, 5, 10,
			},
		}),
	}
})

func getMetrics() *lockMetrics {
	return metricsSingleton()
}
