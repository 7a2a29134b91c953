// Package metrics exposes the Prometheus metrics of the OilPriceAPI client.
// All metrics are defined in their respective packages (client, ratelimit)
// to maintain modularity and avoid circular dependencies.
//
// This package provides the scrape handler and a reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - oilpriceapi_requests_total{route, status} (Counter): HTTP attempts by route template and status
//     (status is "transport_error" when no response arrived)
//   - oilpriceapi_request_duration_seconds{route} (Histogram): Full call duration including retries
//   - oilpriceapi_errors_total{code} (Counter): Failed attempts by error code
//     (AUTHENTICATION_ERROR, RATE_LIMIT_ERROR, NOT_FOUND_ERROR, SERVER_ERROR,
//     TIMEOUT_ERROR, HTTP_ERROR, NETWORK_ERROR, REQUEST_CANCELLED, INVALID_RESPONSE)
//
// Retry Metrics (pkg/client):
//   - oilpriceapi_retries_total{code} (Counter): Retry waits by error code
//   - oilpriceapi_retry_backoff_seconds{code} (Histogram): Backoff or Retry-After wait by error code
//   - oilpriceapi_retry_exhausted_total{code} (Counter): Calls that used up the attempt budget
//
// Quota Metrics (pkg/ratelimit):
//   - oilpriceapi_quota_remaining (Gauge): Requests remaining in the current quota window
//   - oilpriceapi_quota_limit (Gauge): Request limit of the current quota window
//   - oilpriceapi_quota_low_total{severity} (Counter): Responses reporting a low ("warning") or
//     nearly exhausted ("critical") quota
//
// Example Prometheus Queries:
//
//   # Error Rate by Code
//   sum by (code) (rate(oilpriceapi_errors_total[5m]))
//
//   # Retry Ratio
//   sum(rate(oilpriceapi_retries_total[5m])) / sum(rate(oilpriceapi_requests_total[5m]))
//
//   # Quota Running Out
//   oilpriceapi_quota_remaining / oilpriceapi_quota_limit < 0.1
//
//   # P95 Call Latency
//   histogram_quantile(0.95, rate(oilpriceapi_request_duration_seconds_bucket[5m]))
