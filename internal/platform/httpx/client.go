// Package httpx builds outbound HTTP clients with explicit timeouts.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
)

// NewClient returns an HTTP client with a timeout on every phase of a
// request. The healthcheck subcommand and the admin CLI use it instead of
// http.DefaultClient, which never times out.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	dialTimeout := clampTimeout(timeout, defaultDialTimeout)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: clampTimeout(timeout, defaultResponseHeaderTimeout),
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		},
	}
}

// clampTimeout caps d at limit so a generous overall timeout does not
// stretch the per-phase limits with it.
func clampTimeout(d, limit time.Duration) time.Duration {
	if d > limit {
		return limit
	}
	return d
}
