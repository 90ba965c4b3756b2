// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
	"unicode/utf8"

	"github.com/ManuGH/xl2wh/internal/log"
)

// Recoverer ensures that panics inside any downstream handler do not crash
// the process. It logs the panic with context and returns a 500 JSON body.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				respondPanic(w, r, rec)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func respondPanic(w http.ResponseWriter, r *http.Request, rec any) {
	// Request paths are attacker controlled, keep the log line valid UTF-8.
	pathLabel := r.URL.Path
	if !utf8.ValidString(pathLabel) {
		pathLabel = strings.ToValidUTF8(pathLabel, "")
	}

	logger := log.WithComponentFromContext(r.Context(), "panic-recovery")
	logger.Error().
		Str(log.FieldEvent, "panic.recovered").
		Str("method", r.Method).
		Str(log.FieldPath, pathLabel).
		Str("remote_addr", r.RemoteAddr).
		Interface("panic_value", rec).
		Str("stack_trace", string(debug.Stack())).
		Msg("panic recovered in HTTP handler")

	// Best-effort JSON error response
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      "internal server error",
		"request_id": log.RequestIDFromContext(r.Context()),
	})
}
