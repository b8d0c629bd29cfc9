package idempotency

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAdmitted = "admitted"
	resultInFlight = "in_flight"
	resultReplayed = "replayed"
	resultError    = "error"
)

type guardMetrics struct {
	admissionsTotal *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *guardMetrics {
	return &guardMetrics{
		admissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idempotency",
			Name:      "admissions_total",
			Help:      "Total number of idempotency admissions by outcome.",
		}, []string{"result"}),
	}
})

func getMetrics() *guardMetrics {
	return metricsSingleton()
}
