package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for ESI requests.
var (
	esiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketwatch_esi_requests_total",
		Help: "Total ESI requests by resource category and status",
	}, []string{"category", "status"})

	esiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketwatch_esi_request_duration_seconds",
		Help:    "ESI request duration in seconds by resource category",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"category"})

	esiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketwatch_esi_errors_total",
		Help: "Total ESI errors by class",
	}, []string{"class"})

	esiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketwatch_esi_retries_total",
		Help: "Total retry attempts by error class",
	}, []string{"class"})

	esiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketwatch_esi_retry_exhausted_total",
		Help: "Total fetches that exhausted every attempt by error class",
	}, []string{"class"})

	esiNotModifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketwatch_esi_not_modified_total",
		Help: "Total 304 Not Modified responses",
	})
)
