// SPDX-License-Identifier: MIT

// Package ratelimit provides token-bucket admission control for the HTTP
// surface: one global bucket, one bucket per client IP, and one per route
// scope so a burst of workbook uploads cannot starve cheap reads.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "xl2wh",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total rate limit rejections",
	},
	[]string{"limit_type", "scope"},
)

// Route scopes. Handlers pass one of these to Allow so the per-scope
// buckets can price expensive work differently from reads.
const (
	ScopeUpload   = "upload"   // workbook and table uploads: decode plus DB writes
	ScopePipeline = "pipeline" // ETL runs and KPI calculations
	ScopeQuery    = "query"    // results, analysis, batch reads
)

// Config holds rate limiting configuration.
type Config struct {
	// Global limits across all clients
	GlobalRate  rate.Limit // requests per second
	GlobalBurst int        // max burst size

	// Per-IP limits
	PerIPRate  rate.Limit
	PerIPBurst int

	// Per-scope limits keyed by the Scope* constants
	ScopeRates map[string]rate.Limit
	ScopeBurst map[string]int

	// Cleanup interval for per-IP limiters
	CleanupInterval time.Duration
}

// DefaultConfig returns limits sized for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  50,
		GlobalBurst: 100,

		PerIPRate:  10,
		PerIPBurst: 20,

		ScopeRates: map[string]rate.Limit{
			ScopeUpload:   2,  // multipart decode and staging writes
			ScopePipeline: 5,  // ETL/KPI triggers hold DB transactions
			ScopeQuery:    25, // cached or index-backed reads
		},
		ScopeBurst: map[string]int{
			ScopeUpload:   5,
			ScopePipeline: 10,
			ScopeQuery:    50,
		},

		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter manages the token buckets.
type Limiter struct {
	config Config

	global   *rate.Limiter
	perIP    map[string]*rate.Limiter
	perScope map[string]*rate.Limiter
	mu       sync.RWMutex

	lastCleanup time.Time
}

// New creates a limiter with the given config.
func New(config Config) *Limiter {
	l := &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		perScope:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}

	for scope, scopeRate := range config.ScopeRates {
		burst := config.ScopeBurst[scope]
		l.perScope[scope] = rate.NewLimiter(scopeRate, burst)
	}

	return l
}

// Allow reports whether a request from clientIP may proceed under the
// global, per-scope, and per-IP limits. Scopes without a configured
// bucket are only subject to the global and per-IP limits.
func (l *Limiter) Allow(clientIP, scope string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global", scope).Inc()
		return false
	}

	l.mu.RLock()
	scopeLimiter, exists := l.perScope[scope]
	l.mu.RUnlock()

	if exists && !scopeLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_scope", scope).Inc()
		return false
	}

	// Sweep before the lookup so the bucket created for this request
	// survives the sweep.
	l.maybeCleanup()

	ipLimiter := l.getIPLimiter(clientIP)
	if !ipLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_ip", scope).Inc()
		return false
	}

	return true
}

// getIPLimiter returns the bucket for one client IP, creating it on
// first sight.
func (l *Limiter) getIPLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perIP[ip]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}

	return limiter
}

// maybeCleanup drops the per-IP map once the cleanup interval has
// passed. Buckets rebuild at full burst on the next request from that
// IP, which bounds memory without tracking last access per entry.
func (l *Limiter) maybeCleanup() {
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// GetClientIP extracts the real client IP from the request, preferring
// proxy headers over the socket address.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For may carry a chain: "client, proxy1, proxy2".
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		if xff = strings.TrimSpace(xff); xff != "" {
			return xff
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
