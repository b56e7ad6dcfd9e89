package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Change request outcomes.
const (
	outcomeSubmitted   = "submitted"
	outcomeApproved    = "approved"
	outcomeRejected    = "rejected"
	outcomeApplyFailed = "apply_failed"
	outcomeDirect      = "direct"
)

var changeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chronicle_change_requests_total",
	Help: "Catalog changes by entity type and outcome",
}, []string{"entity_type", "outcome"})

var requestsPurged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chronicle_change_requests_purged_total",
	Help: "Reviewed change requests removed by retention purges",
})
