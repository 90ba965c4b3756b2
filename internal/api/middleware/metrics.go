// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ManuGH/xl2wh/internal/metrics"
)

// Metrics creates a middleware that records request count, latency and
// in-flight gauge through the central metrics package. The route pattern is
// used as the label to keep cardinality bounded.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			metrics.IncHTTPInFlight()
			defer metrics.DecHTTPInFlight()

			// Wrap response writer to capture the status while preserving
			// streaming interfaces.
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// Extract route pattern for cleaner metrics (avoids cardinality explosion)
			route := r.URL.Path
			if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
				if pattern := routeCtx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			metrics.RecordHTTPRequest(r.Method, route, ww.Status(), time.Since(start).Seconds())
		})
	}
}
