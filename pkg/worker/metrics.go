package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketwatch_pool_queue_depth",
		Help: "Number of tasks waiting in the pool queue",
	})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketwatch_pool_tasks_total",
		Help: "Total tasks executed by result (ok, error, panic)",
	}, []string{"result"})
)
