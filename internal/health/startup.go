// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/xl2wh/internal/config"
	"github.com/ManuGH/xl2wh/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	// 1. Data Directory Permissions
	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	// 2. Targeted Validations
	if err := checkTargetedValidations(logger, cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	// A container volume mount may start empty; create missing directories.
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("cannot create data directory %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Check write permissions by creating a temp file
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("✓ Data directory is writable")
	return nil
}

// checkTargetedValidations performs security and runtime-critical validations
func checkTargetedValidations(logger zerolog.Logger, cfg config.Config) error {
	// a. Listen Addresses (Parseable)
	if err := checkListenAddr(cfg.Server.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	logger.Info().Str("addr", cfg.Server.ListenAddr).Msg("✓ API listen address is valid")

	if cfg.MetricsEnabled {
		if err := checkListenAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics address: %w", err)
		}
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("✓ Metrics listen address is valid")
	}

	// b. Database Path (parent exists, path is not a directory)
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("cannot create database directory %s: %w", dbDir, err)
	}
	if info, err := os.Stat(cfg.DBPath); err == nil && info.IsDir() {
		return fmt.Errorf("database path is a directory: %s", cfg.DBPath)
	}
	logger.Info().Str("path", cfg.DBPath).Msg("✓ Database path is usable")

	// c. KPI Definitions (Readable when configured)
	if cfg.KPIDefinitionsPath != "" {
		if err := checkFileReadable(cfg.KPIDefinitionsPath); err != nil {
			return fmt.Errorf("KPI definitions file error: %w", err)
		}
		logger.Info().Str("path", cfg.KPIDefinitionsPath).Msg("✓ KPI definitions file is readable")
	}

	// d. Redis Address (Syntax only; the cache falls back on connect errors)
	if cfg.RedisAddr == "" {
		logger.Info().Msg("Redis not configured; analysis cache runs in-memory")
	} else {
		if _, _, err := net.SplitHostPort(cfg.RedisAddr); err != nil {
			return fmt.Errorf("invalid XL2WH_REDIS_ADDR %q: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("✓ Redis address is valid")
	}

	// e. Workbook Archive
	switch cfg.ArchiveBackend {
	case "off":
		logger.Warn().Msg("workbook archive disabled; uploaded originals are not retained")
	case "local":
		if err := os.MkdirAll(cfg.ArchivePath, 0750); err != nil {
			return fmt.Errorf("cannot create archive directory %s: %w", cfg.ArchivePath, err)
		}
		logger.Info().Str("path", cfg.ArchivePath).Msg("✓ Archive directory is usable")
	case "s3":
		if strings.TrimSpace(cfg.AWSKey) == "" {
			logger.Warn().
				Str("bucket", cfg.ArchiveBucket).
				Msg("S3 archive without static credentials; relying on ambient AWS identity")
		} else {
			logger.Info().Str("bucket", cfg.ArchiveBucket).Msg("✓ S3 archive credentials configured")
		}
	}

	// f. Persistence safety
	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; staged uploads and the warehouse may be lost on reboot")
	}

	return nil
}

func checkListenAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("listen address is empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid port %q in %q", port, addr)
	}
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config; verifying readability is expected
	if err != nil {
		return err
	}
	return f.Close()
}
