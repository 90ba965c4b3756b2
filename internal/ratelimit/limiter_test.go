// SPDX-License-Identifier: MIT

package ratelimit

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLimiterGlobal(t *testing.T) {
	config := Config{
		GlobalRate:      10,
		GlobalBurst:     20,
		PerIPRate:       100,
		PerIPBurst:      200,
		ScopeRates:      map[string]rate.Limit{ScopeQuery: 100},
		ScopeBurst:      map[string]int{ScopeQuery: 200},
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 25; i++ {
		if limiter.Allow("192.168.1.1", ScopeQuery) {
			allowed++
		}
	}

	// The global burst of 20 is the binding limit here.
	if allowed < 19 || allowed > 21 {
		t.Errorf("expected ~20 requests to pass with global burst=20, got %d", allowed)
	}
}

func TestLimiterPerScope(t *testing.T) {
	config := Config{
		GlobalRate:  100,
		GlobalBurst: 200,
		PerIPRate:   100,
		PerIPBurst:  200,
		ScopeRates: map[string]rate.Limit{
			ScopeUpload: 5,
		},
		ScopeBurst: map[string]int{
			ScopeUpload: 10,
		},
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("192.168.1.2", ScopeUpload) {
			allowed++
		}
	}

	if allowed < 9 || allowed > 11 {
		t.Errorf("expected ~10 upload requests to pass with burst=10, got %d", allowed)
	}
}

func TestLimiterUnknownScopePassesScopeCheck(t *testing.T) {
	config := Config{
		GlobalRate:  100,
		GlobalBurst: 200,
		PerIPRate:   100,
		PerIPBurst:  200,
		ScopeRates: map[string]rate.Limit{
			ScopeUpload: 1,
		},
		ScopeBurst: map[string]int{
			ScopeUpload: 1,
		},
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	// No bucket for this scope, so only global and per-IP limits apply.
	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("192.168.1.9", "unscoped") {
			allowed++
		}
	}

	if allowed != 20 {
		t.Errorf("expected all 20 unscoped requests to pass, got %d", allowed)
	}
}

func TestLimiterPerIP(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerIPRate:       5,
		PerIPBurst:      10,
		ScopeRates:      map[string]rate.Limit{ScopeQuery: 100},
		ScopeBurst:      map[string]int{ScopeQuery: 200},
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("192.168.1.3", ScopeQuery) {
			allowed++
		}
	}

	if allowed < 9 || allowed > 11 {
		t.Errorf("expected ~10 per-IP requests to pass with burst=10, got %d", allowed)
	}

	// A different IP gets its own bucket.
	allowed2 := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("192.168.1.4", ScopeQuery) {
			allowed2++
		}
	}

	if allowed2 < 9 || allowed2 > 11 {
		t.Errorf("expected ~10 requests for second IP, got %d", allowed2)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "forwarded-for single IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.1",
		},
		{
			name:       "forwarded-for chain takes first hop",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 192.168.1.1, 10.0.0.1"},
			remoteAddr: "127.0.0.1:12345",
			want:       "203.0.113.1",
		},
		{
			name:       "forwarded-for with padding",
			headers:    map[string]string{"X-Forwarded-For": "  203.0.113.5  "},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.5",
		},
		{
			name:       "blank forwarded-for falls through to real-ip",
			headers:    map[string]string{"X-Forwarded-For": "   ", "X-Real-IP": "203.0.113.2"},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.2",
		},
		{
			name:       "real-ip",
			headers:    map[string]string{"X-Real-IP": "203.0.113.2"},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.2",
		},
		{
			name:       "remote addr fallback",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100:54321",
			want:       "192.168.1.100",
		},
		{
			name:       "remote addr ipv6",
			headers:    map[string]string{},
			remoteAddr: "[2001:db8::1]:54321",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			req.RemoteAddr = tt.remoteAddr

			got := GetClientIP(req)
			if got != tt.want {
				t.Errorf("GetClientIP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimiterCleanup(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerIPRate:       10,
		PerIPBurst:      20,
		ScopeRates:      map[string]rate.Limit{ScopeQuery: 100},
		ScopeBurst:      map[string]int{ScopeQuery: 200},
		CleanupInterval: 100 * time.Millisecond,
	}
	limiter := New(config)

	for i := 0; i < 10; i++ {
		limiter.Allow(fmt.Sprintf("192.168.1.%d", 100+i), ScopeQuery)
	}

	limiter.mu.RLock()
	countBefore := len(limiter.perIP)
	limiter.mu.RUnlock()

	if countBefore != 10 {
		t.Errorf("expected 10 IP limiters, got %d", countBefore)
	}

	time.Sleep(150 * time.Millisecond)

	// The next request triggers the cleanup and recreates one bucket.
	limiter.Allow("192.168.1.200", ScopeQuery)

	limiter.mu.RLock()
	countAfter := len(limiter.perIP)
	limiter.mu.RUnlock()

	if countAfter != 1 {
		t.Errorf("expected 1 IP limiter after cleanup, got %d", countAfter)
	}
}

func BenchmarkLimiterAllow(b *testing.B) {
	limiter := New(DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("192.168.1.1", ScopeQuery)
	}
}

func BenchmarkGetClientIP(b *testing.B) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
	req.RemoteAddr = "192.168.1.100:54321"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GetClientIP(req)
	}
}
