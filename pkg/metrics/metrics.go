// Package metrics exposes the Prometheus metrics of the mapping client.
// Metrics are defined in the packages that record them (client, ratelimit,
// job, pagination, cache, mapping) and registered via promauto, so this
// package only serves and documents them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer all idmap_* metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back everything registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Serve runs the metrics endpoint on addr until ctx is done. Long mapping runs
// can be scraped while they poll.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "metrics").Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - idmap_requests_total{endpoint, status} (Counter): Requests by collapsed path and HTTP status
//   - idmap_request_duration_seconds{endpoint} (Histogram): Request duration including retries
//   - idmap_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - idmap_retries_total{error_class} (Counter): Retry attempts by error class
//   - idmap_retry_backoff_seconds{error_class} (Histogram): Backoff slept before a retry
//   - idmap_retry_exhausted_total{error_class} (Counter): Requests that ran out of attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - idmap_rate_limit_waits_total (Counter): Requests delayed by the local token bucket
//   - idmap_rate_limit_backoffs_total (Counter): Server-requested pauses (Retry-After)
//
// Job Metrics (pkg/job):
//   - idmap_jobs_submitted_total (Counter): Jobs created
//   - idmap_job_polls_total{status} (Counter): Status polls by observed state
//   - idmap_jobs_finished_total{outcome} (Counter): Jobs ended as finished, error, cancelled, failed
//   - idmap_job_wait_seconds (Histogram): Time from first poll to results handle
//
// Pagination Metrics (pkg/pagination):
//   - idmap_pages_fetched_total{format} (Counter): Result pages retrieved
//   - idmap_results_fetched_total{format} (Counter): Records or lines retrieved
//   - idmap_page_bytes (Histogram): Page body size after decompression
//
// Cache Metrics (pkg/cache):
//   - idmap_cache_hits_total (Counter): Chunks served from Redis
//   - idmap_cache_misses_total (Counter): Chunks not found in Redis
//   - idmap_cache_entry_bytes (Histogram): Serialized entry size
//   - idmap_cache_errors_total{operation} (Counter): Cache failures by operation
//
// Mapping Metrics (pkg/mapping):
//   - idmap_chunks_total{outcome} (Counter): Chunks by outcome (ok, cached, failed)
//   - idmap_chunk_duration_seconds (Histogram): Submit-to-reconciled duration per chunk
//   - idmap_ids_total{result} (Counter): Requested identifiers by result (matched, unmatched)
//
// Example Prometheus Queries:
//
//   # Share of identifiers the service could not map
//   sum(rate(idmap_ids_total{result="unmatched"}[1h])) / sum(rate(idmap_ids_total[1h]))
//
//   # Retry pressure by class
//   sum by (error_class) (rate(idmap_retries_total[5m]))
//
//   # P95 job wait
//   histogram_quantile(0.95, rate(idmap_job_wait_seconds_bucket[15m]))
//
//   # Cache hit rate
//   sum(rate(idmap_cache_hits_total[1h])) /
//   (sum(rate(idmap_cache_hits_total[1h])) + sum(rate(idmap_cache_misses_total[1h])))
