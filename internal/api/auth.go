// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/ManuGH/xl2wh/internal/auth"
	xllog "github.com/ManuGH/xl2wh/internal/log"
)

// authMiddleware enforces the shared API token on mutating routes. An empty
// configured token disables enforcement entirely; New logs a warning at
// construction so the operator knows the daemon is open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.APIToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		l := logger(r.Context(), "auth")
		reqToken := auth.ExtractToken(r)
		if reqToken == "" {
			l.Warn().Str(xllog.FieldEvent, "auth.missing_header").Msg("authorization header missing")
			writeUnauthorized(w)
			return
		}
		if !auth.AuthorizeToken(reqToken, token) {
			l.Warn().Str(xllog.FieldEvent, "auth.invalid_token").Msg("invalid api token")
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
