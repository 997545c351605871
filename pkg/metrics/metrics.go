// Package metrics exposes the Prometheus registry used by the market watcher.
// All metrics are defined in their respective packages (client, store,
// worker, watcher, ratelimit, auth) via promauto and land in the default
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gatherer is the registry the handler serves. Collectors created with
// promauto in the other packages register with its default registerer.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// NewServer returns a server for /metrics and /healthz on addr.
func NewServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - marketwatch_esi_requests_total{category, status} (Counter): Requests by resource class and HTTP status
//   - marketwatch_esi_request_duration_seconds{category} (Histogram): Request duration by resource class
//   - marketwatch_esi_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, auth)
//   - marketwatch_esi_retries_total{class} (Counter): Retry attempts by error class
//   - marketwatch_esi_retry_exhausted_total{class} (Counter): Fetches that used the whole retry budget
//   - marketwatch_esi_not_modified_total (Counter): 304 Not Modified responses
//
// Error Limit Metrics (pkg/ratelimit):
//   - marketwatch_esi_errors_remaining (Gauge): Errors remaining in the ESI error limit window
//   - marketwatch_esi_gate_decisions_total{decision} (Counter): allowed, throttled, blocked
//
// Store Metrics (pkg/store):
//   - marketwatch_store_ops_total{op} (Counter): Store operations
//   - marketwatch_store_errors_total{op} (Counter): Failed store operations
//
// Pool Metrics (pkg/worker):
//   - marketwatch_pool_queue_depth (Gauge): Queued tasks
//   - marketwatch_pool_tasks_total{result} (Counter): Finished tasks by result (ok, error, panic)
//
// Watcher Metrics (pkg/watcher):
//   - marketwatch_job_runs_total{job} (Counter): Job runs (universe, groups, orders)
//   - marketwatch_job_duration_seconds{job} (Histogram): Job duration
//
// Auth Metrics (pkg/auth):
//   - marketwatch_auth_refresh_total{result} (Counter): Bearer token refreshes
//
// Example Prometheus Queries:
//
//   # 304 Response Rate
//   rate(marketwatch_esi_not_modified_total[5m]) / sum(rate(marketwatch_esi_requests_total[5m]))
//
//   # Error Limit Status
//   marketwatch_esi_errors_remaining < 20
//
//   # Failed Tasks
//   rate(marketwatch_pool_tasks_total{result!="ok"}[15m])
//
//   # P95 Order Job Duration
//   histogram_quantile(0.95, rate(marketwatch_job_duration_seconds_bucket{job="orders"}[1h]))
