package auditor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the capture pipeline.
type Metrics struct {
	Captures        *prometheus.CounterVec
	PersistFailures prometheus.Counter
	Vetoed          prometheus.Counter
	PrunedRecords   prometheus.Counter
	PruneFailures   prometheus.Counter
}

// NewMetrics creates a Metrics instance registered against reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Captures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chronicle_captures_total",
			Help: "Total number of completed capture attempts by event and driver",
		}, []string{"event", "driver"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_persist_failures_total",
			Help: "Total number of record persistence failures",
		}),
		Vetoed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_captures_vetoed_total",
			Help: "Total number of captures vetoed by a pre-write hook",
		}),
		PrunedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_pruned_records_total",
			Help: "Total number of records removed by retention pruning",
		}),
		PruneFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_prune_failures_total",
			Help: "Total number of pruning failures (never fail the capture)",
		}),
	}
}
