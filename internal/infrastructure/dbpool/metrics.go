package dbpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checkoutWait = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "chronicle_db_checkout_wait_seconds",
	Help:    "Time spent waiting for a database session",
	Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
})

var operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chronicle_db_operation_errors_total",
	Help: "Database failures by operation and classification",
}, []string{"op", "kind"})

var operationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chronicle_db_operation_retries_total",
	Help: "Retries of transient database failures by operation",
}, []string{"op"})

var evictions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chronicle_db_session_evictions_total",
	Help: "Broken sessions discarded at checkout",
})

var poolSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "chronicle_db_sessions",
	Help: "Pooled database sessions by state",
}, []string{"state"})

var healthUp = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "chronicle_db_up",
	Help: "1 when the last health check succeeded",
})
