// Package log owns the process-wide zerolog setup. Packages take
// component-scoped children from it instead of wiring writers themselves.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xl2wh/internal/version"
)

// Config captures options for the global logger.
type Config struct {
	Level   string    // log level name; env vars and "info" fill the gaps
	Output  io.Writer // defaults to os.Stdout
	Service string    // service tag attached to every entry
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global logger exactly once; later calls are
// no-ops. Everything inherits from it through the package accessors.
func Configure(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(resolveLevel(cfg.Level))
		zerolog.TimeFieldFormat = time.RFC3339
		base = buildBase(cfg)
	})
}

// resolveLevel picks the first parseable level from the explicit setting,
// then the environment, then info.
func resolveLevel(explicit string) zerolog.Level {
	for _, candidate := range []string{explicit, envLevel()} {
		if candidate == "" {
			continue
		}
		if parsed, err := zerolog.ParseLevel(candidate); err == nil {
			return parsed
		}
	}
	return zerolog.InfoLevel
}

func envLevel() string {
	if v := os.Getenv("XL2WH_LOG_LEVEL"); v != "" {
		return v
	}
	return os.Getenv("LOG_LEVEL")
}

func buildBase(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = os.Getenv("XL2WH_LOG_SERVICE")
	}
	if service == "" {
		service = "xl2wh"
	}

	return zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Str("version", version.Version).
		Logger()
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

// Derive builds a child logger through the given context builder.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	ctx := logger().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}

func init() {
	Configure(Config{})
}
