/*
Package metrics provides Prometheus instrumentation and health endpoints
for the broker, exposed at /metrics, /health, /ready, and /healthz.

# Metrics catalog

Request-path counters and histograms (recorded by pkg/api's
requestMetrics middleware):

	broker_api_requests_total{method,status}       Counter
	broker_api_request_duration_seconds{method}     Histogram

Scheduler counters (pkg/scheduler):

	broker_events_published_total                   Counter
	broker_events_publish_failed_total               Counter
	broker_publish_latency_seconds                   Histogram

Ingress/mutation counters (pkg/api handlers):

	broker_events_inserted_total                     Counter
	broker_events_cancelled_total                     Counter
	broker_users_created_total                        Counter
	broker_login_failures_total                       Counter

Point-in-time gauges, refreshed every 15s by a Collector that samples
the store and bus (see collector.go):

	broker_subscribers_active                         Gauge
	broker_users_total                                Gauge
	broker_events_stored_total                         Gauge
	broker_events_pending_total                        Gauge

# Usage

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.PublishLatency)

	collector := metrics.NewCollector(store, bus)
	collector.Start()
	defer collector.Stop()

# See Also

  - pkg/metrics/health.go - liveness/readiness handlers and component registry
  - github.com/prometheus/client_golang documentation
*/
package metrics
