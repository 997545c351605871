package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeOps counts store operations by name.
	storeOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_store_ops_total",
			Help: "Total number of store operations",
		},
		[]string{"op"},
	)

	// storeErrors counts failed store operations by name.
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_store_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"op"},
	)
)
