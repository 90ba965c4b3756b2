// SPDX-License-Identifier: MIT

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ManuGH/xl2wh/internal/ratelimit"
)

// RateLimitConfig holds configuration for the sliding-window rate limiter.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window
	RequestLimit int
	// WindowSize is the time window for rate limiting
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request (e.g. IP address)
	// If nil, defaults to IP-based rate limiting
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a per-endpoint rate limiting middleware using the
// httprate library (sliding window counter).
//
// Example usage:
//
//	// Limit to 10 requests per minute per IP
//	r.Use(middleware.RateLimit(middleware.RateLimitConfig{
//	    RequestLimit: 10,
//	    WindowSize:   time.Minute,
//	}))
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeRateLimited(w, int(cfg.WindowSize.Seconds()))
		}),
	)
}

// UploadRateLimit limits workbook upload endpoints. Uploads decode whole
// xlsx files, so the window is deliberately tight.
// Default: 20 requests per minute per IP.
func UploadRateLimit() func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: 20,
		WindowSize:   time.Minute,
	})
}

// PipelineRateLimit limits ETL and KPI trigger endpoints.
// Default: 30 requests per minute per IP.
func PipelineRateLimit() func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: 30,
		WindowSize:   time.Minute,
	})
}

// APIRateLimit limits general API endpoints.
// Default: 600 requests per minute per IP.
func APIRateLimit() func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: 600,
		WindowSize:   time.Minute,
	})
}

// Throttle consults the token-bucket limiter before admitting a request.
// With an empty scope only the global and per-client buckets apply; route
// groups pass their scope so expensive endpoints drain their own bucket.
func Throttle(limiter *ratelimit.Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow(ratelimit.GetClientIP(r), scope) {
				writeRateLimited(w, 1)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimited writes the canonical 429 response with a Retry-After hint.
func writeRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
	w.WriteHeader(http.StatusTooManyRequests)

	resp := `{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`
	_, _ = w.Write([]byte(resp))
}
