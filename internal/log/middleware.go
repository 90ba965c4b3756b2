// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Middleware stores a request-scoped logger in the context and writes one
// completion line per request. It expects the request ID middleware to have
// run already so the correlation fields are in the context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			l := WithContext(r.Context(), Base())
			ctx := l.WithContext(r.Context())

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			evt := l.Info()
			if quietPath(r.URL.Path) {
				evt = l.Debug()
			}
			evt.
				Str(FieldEvent, "http.request").
				Str("method", r.Method).
				Str(FieldPath, r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request completed")
		})
	}
}

// quietPath reports whether p is probed often enough that its request log
// belongs at debug level.
func quietPath(p string) bool {
	switch p {
	case "/healthz", "/readyz", "/livez", "/metrics":
		return true
	}
	return false
}
