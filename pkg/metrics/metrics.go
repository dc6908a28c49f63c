// Package metrics exposes the Prometheus registry used by the SDK.
// All metrics are defined in their respective packages (client, middleware,
// batch, upload, pagination, store) and registered via promauto.
//
// This package provides the scrape handler and the catalogue of all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the SDK.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns an http.Handler serving the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - graphcore_requests_total{method, status} (Counter): Requests by method and HTTP status or error class
//   - graphcore_request_duration_seconds{method} (Histogram): Duration including retries and redirects
//   - graphcore_request_errors_total{class} (Counter): Failures by class (client, server, throttled, redirect, auth, canceled, network)
//
// Pipeline Metrics (pkg/middleware):
//   - graphcore_retries_total{status} (Counter): Retry attempts by response status
//   - graphcore_retry_delay_seconds (Histogram): Delay applied before each retry
//   - graphcore_retry_exhausted_total (Counter): Requests that exhausted their retry budget
//   - graphcore_redirects_total{status} (Counter): Redirects followed by status
//   - graphcore_auth_challenges_total{claims} (Counter): 401 responses answered with a re-authenticated retry
//   - graphcore_chaos_injections_total{status} (Counter): Responses substituted by the chaos stage
//   - graphcore_decompressed_responses_total (Counter): gzip responses decoded
//
// Batch Metrics (pkg/batch):
//   - graphcore_batch_requests_total{status} (Counter): Physical batch requests by status
//   - graphcore_batch_steps_total (Counter): Steps sent inside batches
//   - graphcore_batch_step_failures_total{status} (Counter): Non-2xx step responses
//
// Upload Metrics (pkg/upload):
//   - graphcore_upload_slices_total{outcome} (Counter): Slices by outcome (completed, no_item, retryable, fatal)
//   - graphcore_upload_bytes_total (Counter): Bytes accepted in slices
//   - graphcore_uploads_total{result} (Counter): Finished uploads (completed, canceled, failed)
//
// Paging Metrics (pkg/pagination):
//   - graphcore_pages_fetched_total{kind} (Counter): Pages fetched (next, delta)
//   - graphcore_page_items_total (Counter): Items handed to iterator callbacks
//
// Store Metrics (pkg/store):
//   - graphcore_store_hits_total{namespace} (Counter): Reads of present keys
//   - graphcore_store_misses_total{namespace} (Counter): Reads of missing or expired keys
//   - graphcore_store_errors_total{operation} (Counter): Store operation errors
//
// Example Prometheus Queries:
//
//   # Throttling Rate
//   sum(rate(graphcore_retries_total{status="429"}[5m]))
//
//   # Request Error Rate
//   rate(graphcore_request_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(graphcore_request_duration_seconds_bucket[5m]))
//
//   # Batch Step Failure Ratio
//   sum(rate(graphcore_batch_step_failures_total[5m])) / sum(rate(graphcore_batch_steps_total[5m]))
