// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/xl2wh/internal/config"
	"github.com/ManuGH/xl2wh/internal/daemon"
	"github.com/ManuGH/xl2wh/internal/health"
	xllog "github.com/ManuGH/xl2wh/internal/log"
	xltls "github.com/ManuGH/xl2wh/internal/tls"
	"github.com/ManuGH/xl2wh/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	logger := xllog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config file resolution: an explicit --config wins, otherwise pick up
	// ${XL2WH_DATA}/config.yaml when it exists. ENV always beats the file.
	explicitConfigPath := strings.TrimSpace(*configPath)
	effectiveConfigPath := explicitConfigPath
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("XL2WH_DATA", "/data"))
		if dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effectiveConfigPath = autoPath
			}
		}
	}

	cfg, err := config.FromEnv(effectiveConfigPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	switch {
	case explicitConfigPath != "":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", explicitConfigPath).
			Msg("loaded configuration from file")
	case effectiveConfigPath != "":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file(auto)").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	default:
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	// TLS: explicit pair wins; XL2WH_TLS_ENABLED without a pair generates a
	// self-signed one. A one-sided pair is already rejected by config.
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		logger.Info().
			Str("cert", cfg.TLSCert).
			Str("key", cfg.TLSKey).
			Msg("using provided TLS certificates")
	} else if config.ParseBool("XL2WH_TLS_ENABLED", false) {
		certPath, keyPath, err := xltls.EnsureCertificates(xltls.Config{Logger: logger})
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "tls.ensure_failed").
				Msg("failed to ensure TLS certificates")
		}
		cfg.TLSCert = certPath
		cfg.TLSKey = keyPath
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.Server.ListenAddr).
		Msg("starting xl2wh")

	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Database: %s", cfg.DBPath)
	logger.Info().Msgf("→ Archive: %s", cfg.ArchiveBackend)
	if cfg.RedisAddr != "" {
		logger.Info().Msgf("→ Cache: redis (%s)", cfg.RedisAddr)
	} else {
		logger.Info().Msg("→ Cache: in-process")
	}
	if cfg.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().
			Str("security", "weak").
			Msg("→ API token: NOT configured (auth disabled). Set XL2WH_API_TOKEN for security.")
	}
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		logger.Info().Msgf("→ TLS: enabled (cert: %s, key: %s)", cfg.TLSCert, cfg.TLSKey)
	}

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "wiring.failed").
			Msg("failed to build service graph")
	}

	metricsAddr := ""
	if cfg.MetricsEnabled {
		metricsAddr = strings.TrimSpace(cfg.MetricsAddr)
		if metricsAddr == "" {
			metricsAddr = ":9091"
		}
	}

	deps := daemon.Deps{
		Logger:         logger,
		Config:         cfg,
		APIHandler:     rt.apiHandler,
		MetricsHandler: promhttp.Handler(),
		MetricsAddr:    metricsAddr,
	}

	mgr, err := daemon.NewManager(cfg.Server, deps)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation_failed").
			Msg("failed to create daemon manager")
	}

	// Registration order matters: the manager runs hooks LIFO, so the job
	// queue stops before the stores close and the tracer flushes last.
	for _, h := range rt.hooks {
		mgr.RegisterShutdownHook(h.name, h.fn)
	}

	app := daemon.NewApp(logger, mgr, daemon.AppOptions{
		Jobs:    rt.jobs,
		Watcher: rt.watcher,
		Cache:   rt.cache,
	})
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}
