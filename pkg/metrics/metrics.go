// Package metrics documents the Prometheus metrics of the enricher and
// serves them over HTTP. All metrics are defined in their respective
// packages (client, cache, ratelimit, fetch, pagination, enrich) to keep
// those packages free of a central dependency.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the enricher.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// NewMux returns a mux serving /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Serve listens on addr and serves NewMux until ctx is cancelled. The
// returned channel yields the listener's terminal error (nil on clean
// shutdown) and is closed afterwards.
func Serve(ctx context.Context, addr string) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return ln.Addr(), done, nil
}

// Metrics Documentation
//
// HTTP Metrics (pkg/client):
//   - enricher_http_requests_total{host, status} (Counter): Requests by host and HTTP status
//   - enricher_http_request_duration_seconds{host} (Histogram): Request duration by host
//   - enricher_http_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//   - enricher_http_retries_total{error_class} (Counter): Retry attempts by error class
//   - enricher_http_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - enricher_http_retry_exhausted_total{error_class} (Counter): Requests that exhausted their attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - enricher_rate_limit_remaining (Gauge): Remaining quota reported by the server
//   - enricher_rate_limit_blocks_total (Counter): Waits until a quota reset
//   - enricher_rate_limit_throttles_total (Counter): Requests delayed on low quota
//
// Response Cache Metrics (pkg/cache, only with redis_url):
//   - enricher_http_cache_hits_total (Counter), enricher_http_cache_misses_total (Counter)
//   - enricher_http_cache_size_bytes (Gauge)
//   - enricher_http_304_responses_total (Counter): 304 responses
//   - enricher_http_conditional_requests_total (Counter)
//   - enricher_http_cache_errors_total{operation} (Counter)
//
// Engine Metrics (pkg/fetch, pkg/pagination, pkg/enrich):
//   - enricher_fetch_total{outcome} (Counter): Leaf fetches by outcome (ok, absent)
//   - enricher_pagination_pages_total (Counter)
//   - enricher_pagination_cycles_total (Counter): Listings stopped by a revisited next link
//   - enricher_pagination_failures_total (Counter)
//   - enricher_resolution_cache_hits_total / _misses_total (Counter)
//   - enricher_resolution_absent_total (Counter)
//   - enricher_runs_total{outcome} (Counter), enricher_run_duration_seconds (Histogram)
//   - enricher_records_total{stage} (Counter): Records enriched and kept
//
// Example Prometheus Queries:
//
//   # Resolution cache hit rate
//   sum(rate(enricher_resolution_cache_hits_total[5m])) /
//   (sum(rate(enricher_resolution_cache_hits_total[5m])) + sum(rate(enricher_resolution_cache_misses_total[5m])))
//
//   # Share of absent leaves
//   rate(enricher_fetch_total{outcome="absent"}[5m]) / rate(enricher_fetch_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(enricher_http_request_duration_seconds_bucket[5m]))
