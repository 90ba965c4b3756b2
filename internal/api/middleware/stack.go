// SPDX-License-Identifier: MIT

package middleware

import (
	"net"

	"github.com/go-chi/chi/v5"

	xllog "github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/ratelimit"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
// Every listener goes through ApplyStack so cross-cutting concerns cannot drift.
type StackConfig struct {
	// CORS
	EnableCORS     bool
	AllowedOrigins []string

	// Security headers
	EnableSecurityHeaders bool
	CSP                   string

	// TrustedProxies defines which IPs are trusted to set X-Forwarded-* headers.
	TrustedProxies []*net.IPNet

	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// Limiter enables the global and per-client token buckets. Per-scope
	// limits are applied on route groups, not here.
	Limiter *ratelimit.Limiter
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs the stack in its fixed order: recovery and request
// correlation first, then CORS and security headers, then observability,
// with rate limiting innermost so rejected requests are still counted
// and logged.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer, RequestID)

	if cfg.EnableCORS {
		r.Use(CORS(cfg.AllowedOrigins))
	}
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders(cfg.CSP, cfg.TrustedProxies))
	}

	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(xllog.Middleware())
	}

	if cfg.Limiter != nil {
		r.Use(Throttle(cfg.Limiter, ""))
	}
}
