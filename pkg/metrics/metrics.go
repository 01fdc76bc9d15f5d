// Package metrics exposes the Prometheus metrics of the ad server client.
// The metrics themselves are defined in their packages (client, cache,
// ratelimit, pagination) to keep those packages free of import cycles.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the ad server client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Path is where Serve exposes the metrics.
const Path = "/metrics"

// Handler returns the HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes Handler on addr until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(Path, Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Str("path", Path).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Metrics Documentation
//
// Quota Metrics (pkg/ratelimit):
//   - adserver_quota_remaining (Gauge): Last X-Quota-Remaining value
//   - adserver_quota_blocks_total (Counter): Requests blocked due to critical quota
//   - adserver_quota_throttles_total (Counter): Requests throttled due to low quota
//
// Cache Metrics (pkg/cache):
//   - adserver_cache_hits_total (Counter): Page cache hits
//   - adserver_cache_misses_total (Counter): Page cache misses
//   - adserver_cache_size_bytes (Counter): Bytes written to the page cache
//   - adserver_cache_invalidations_total{service} (Counter): Generation bumps after mutations
//   - adserver_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - adserver_requests_total{service, method, status} (Counter): Requests by outcome
//   - adserver_request_duration_seconds{service, method} (Histogram): Request duration
//   - adserver_errors_total{class} (Counter): Errors by class (auth, validation, client, server, quota, network)
//
// Retry Metrics (pkg/client):
//   - adserver_retries_total{error_class} (Counter): Retry attempts by error class
//   - adserver_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - adserver_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - adserver_pages_fetched_total (Counter): Pages fetched by enumerations
//   - adserver_enumeration_records (Histogram): Result-set size per enumeration
//   - adserver_total_drift_total{policy} (Counter): Total changes seen mid-enumeration
//   - adserver_bulk_actions_total{outcome} (Counter): Bulk actions by outcome
//
// Example Prometheus Queries:
//
//   # Page Cache Hit Rate
//   sum(rate(adserver_cache_hits_total[5m])) /
//   (sum(rate(adserver_cache_hits_total[5m])) + sum(rate(adserver_cache_misses_total[5m])))
//
//   # Quota Status
//   adserver_quota_remaining < 20
//
//   # Drift Rate
//   rate(adserver_total_drift_total[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(adserver_request_duration_seconds_bucket[5m]))
