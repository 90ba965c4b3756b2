package api

import (
	"context"

	xllog "github.com/ManuGH/xl2wh/internal/log"
	"github.com/rs/zerolog"
)

// logger returns a context-aware logger configured with component metadata.
func logger(ctx context.Context, component string) *zerolog.Logger {
	l := xllog.WithComponentFromContext(ctx, component)
	return &l
}
