// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus instruments served on the metrics
// listener. Per-run engine internals are observed through OpenTelemetry in
// their own packages; everything here is the service-level view.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xl2wh_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xl2wh_http_request_duration_seconds",
		Help:    "HTTP request handling time",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xl2wh_http_requests_in_flight",
		Help: "HTTP requests currently being handled",
	})
)

// RecordHTTPRequest observes one finished request. route is the chi route
// pattern, not the raw path, so cardinality stays bounded.
func RecordHTTPRequest(method, route string, status int, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func IncHTTPInFlight() { httpRequestsInFlight.Inc() }
func DecHTTPInFlight() { httpRequestsInFlight.Dec() }
