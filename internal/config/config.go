// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config resolves runtime configuration with the precedence
// ENV > config file > built-in default.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Defaults that are not worth an environment variable of their own.
const (
	defaultDataDir          = "/data"
	defaultMaxUploadBytes   = 20 << 20 // 20 MiB per file
	defaultUploadParallel   = 4
	defaultETLWorkers       = 2
	defaultETLQueueCapacity = 256
	defaultAnomalyThreshold = 1_000_000
	defaultSweepInterval    = 5 * time.Minute
	defaultStaleAfter       = 30 * time.Minute
	defaultAnalysisCacheTTL = 5 * time.Minute
	defaultMetricsAddr      = ":9091"
	defaultGlobalRPS        = 50
	defaultGlobalBurst      = 100
	defaultPerIPRPS         = 10
	defaultPerIPBurst       = 20
)

// DefaultIndicators is the allowed indicator set when none is configured.
var DefaultIndicators = []string{"kpi_score", "output", "quality", "safety"}

// Config is the resolved runtime configuration of the daemon.
type Config struct {
	DataDir string
	DBPath  string

	APIToken    string
	CORSOrigins []string

	// TLS certificate pair for the API listener; both empty means plain HTTP.
	TLSCert string
	TLSKey  string

	// Upload limits and validation sets.
	MaxUploadBytes      int64
	UploadParallelism   int
	AllowedFactoryCodes []string // empty means any
	AllowedIndicators   []string

	// ETL.
	AnomalyThreshold float64
	ETLAuto          bool
	ETLWorkers       int
	ETLQueueCapacity int
	SweepInterval    time.Duration
	BatchStaleAfter  time.Duration

	// KPI definitions seed file (optional, hot-reloaded when set).
	KPIDefinitionsPath string

	// Cache.
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	AnalysisCacheTTL time.Duration

	// Workbook archive.
	ArchiveBackend string // "local", "s3" or "off"
	ArchivePath    string
	ArchiveBucket  string
	ArchivePrefix  string
	AWSKey         string
	AWSSecret      string
	AWSRegion      string

	// Duplicate-content index.
	DedupPath string

	// Rate limiting. RPS values are requests per second.
	RateLimitEnabled     bool
	RateLimitGlobalRPS   float64
	RateLimitGlobalBurst int
	RateLimitPerIPRPS    float64
	RateLimitPerIPBurst  int

	// TrustedProxies lists CIDRs allowed to assert X-Forwarded-* headers.
	TrustedProxies []string

	// Observability.
	MetricsEnabled bool
	MetricsAddr    string
	Tracing        TracingConfig

	Server ServerConfig
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled    bool
	Exporter   string // "grpc" or "http"
	Endpoint   string
	Insecure   bool
	SampleRate float64
}

// FromEnv resolves the full configuration from the environment, applying the
// optional file overlay first so ENV always wins.
func FromEnv(configFile string) (Config, error) {
	var overlay FileConfig
	if configFile != "" {
		loaded, err := LoadFile(configFile)
		if err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
		overlay = loaded
	}

	dataDir := ParseString("XL2WH_DATA", stringOr(overlay.DataDir, defaultDataDir))
	cfg := Config{
		DataDir: dataDir,
		DBPath: ParseStringAlias("XL2WH_DB_PATH", "DB_PATH",
			stringOr(overlay.DBPath, filepath.Join(dataDir, "xl2wh.db"))),

		APIToken:    ParseString("XL2WH_API_TOKEN", ""),
		CORSOrigins: ParseStringSlice("XL2WH_CORS_ORIGINS", overlay.CORSOrigins),

		TLSCert: ParseString("XL2WH_TLS_CERT", overlay.TLSCert),
		TLSKey:  ParseString("XL2WH_TLS_KEY", overlay.TLSKey),

		MaxUploadBytes:    ParseInt64("XL2WH_MAX_UPLOAD_BYTES", int64Or(overlay.MaxUploadBytes, defaultMaxUploadBytes)),
		UploadParallelism: ParseInt("XL2WH_UPLOAD_PARALLELISM", intOr(overlay.UploadParallelism, defaultUploadParallel)),
		AllowedFactoryCodes: ParseSet("XL2WH_ALLOWED_FACTORY_CODES", "ALLOWED_FACTORY_CODES",
			overlay.AllowedFactoryCodes),
		AllowedIndicators: ParseSet("XL2WH_ALLOWED_INDICATORS", "ALLOWED_INDICATORS",
			sliceOr(overlay.AllowedIndicators, DefaultIndicators)),

		AnomalyThreshold: ParseFloatAlias("XL2WH_DQ_ANOMALY_THRESHOLD", "DQ_ANOMALY_THRESHOLD",
			floatOr(overlay.AnomalyThreshold, defaultAnomalyThreshold)),
		ETLAuto:          ParseBool("XL2WH_ETL_AUTO", overlay.ETLAuto),
		ETLWorkers:       ParseInt("XL2WH_ETL_WORKERS", intOr(overlay.ETLWorkers, defaultETLWorkers)),
		ETLQueueCapacity: ParseInt("XL2WH_ETL_QUEUE_CAPACITY", intOr(overlay.ETLQueueCapacity, defaultETLQueueCapacity)),
		SweepInterval:    ParseDuration("XL2WH_SWEEP_INTERVAL", durationOr(overlay.SweepInterval, defaultSweepInterval)),
		BatchStaleAfter:  ParseDuration("XL2WH_BATCH_STALE_AFTER", durationOr(overlay.BatchStaleAfter, defaultStaleAfter)),

		KPIDefinitionsPath: ParseString("XL2WH_KPI_DEFINITIONS", overlay.KPIDefinitions),

		RedisAddr:        ParseString("XL2WH_REDIS_ADDR", overlay.RedisAddr),
		RedisPassword:    ParseString("XL2WH_REDIS_PASSWORD", ""),
		RedisDB:          ParseInt("XL2WH_REDIS_DB", 0),
		AnalysisCacheTTL: ParseDuration("XL2WH_ANALYSIS_CACHE_TTL", durationOr(overlay.AnalysisCacheTTL, defaultAnalysisCacheTTL)),

		ArchiveBackend: ParseString("XL2WH_ARCHIVE_BACKEND", stringOr(overlay.ArchiveBackend, "local")),
		ArchivePath:    ParseString("XL2WH_ARCHIVE_PATH", stringOr(overlay.ArchivePath, filepath.Join(dataDir, "archive"))),
		ArchiveBucket:  ParseString("XL2WH_ARCHIVE_BUCKET", overlay.ArchiveBucket),
		ArchivePrefix:  ParseString("XL2WH_ARCHIVE_PREFIX", stringOr(overlay.ArchivePrefix, "xl2wh")),
		AWSKey:         ParseString("AWS_ACCESS_KEY_ID", ""),
		AWSSecret:      ParseString("AWS_SECRET_ACCESS_KEY", ""),
		AWSRegion:      ParseString("AWS_REGION", stringOr(overlay.AWSRegion, "us-east-1")),

		DedupPath: ParseString("XL2WH_DEDUP_PATH", stringOr(overlay.DedupPath, filepath.Join(dataDir, "dedup"))),

		RateLimitEnabled:     ParseBool("XL2WH_RATELIMIT_ENABLED", boolOr(overlay.RateLimitEnabled, true)),
		RateLimitGlobalRPS:   ParseFloat("XL2WH_RATELIMIT_GLOBAL_RPS", defaultGlobalRPS),
		RateLimitGlobalBurst: ParseInt("XL2WH_RATELIMIT_GLOBAL_BURST", defaultGlobalBurst),
		RateLimitPerIPRPS:    ParseFloat("XL2WH_RATELIMIT_PER_IP_RPS", defaultPerIPRPS),
		RateLimitPerIPBurst:  ParseInt("XL2WH_RATELIMIT_PER_IP_BURST", defaultPerIPBurst),

		TrustedProxies: ParseStringSlice("XL2WH_TRUSTED_PROXIES", overlay.TrustedProxies),

		MetricsEnabled: ParseBool("XL2WH_METRICS_ENABLED", boolOr(overlay.MetricsEnabled, true)),
		MetricsAddr:    ParseString("XL2WH_METRICS_ADDR", stringOr(overlay.MetricsAddr, defaultMetricsAddr)),
		Tracing: TracingConfig{
			Enabled:    ParseBool("XL2WH_TRACING_ENABLED", false),
			Exporter:   ParseString("XL2WH_TRACING_EXPORTER", "grpc"),
			Endpoint:   ParseString("XL2WH_TRACING_ENDPOINT", "localhost:4317"),
			Insecure:   ParseBool("XL2WH_TRACING_INSECURE", true),
			SampleRate: ParseFloat("XL2WH_TRACING_SAMPLE_RATE", 1.0),
		},

		Server: ParseServerConfigWith(overlay.Server),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data directory must not be empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive (got %d)", c.MaxUploadBytes)
	}
	if c.UploadParallelism <= 0 {
		return fmt.Errorf("upload parallelism must be positive (got %d)", c.UploadParallelism)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS certificate and key must be set together")
	}
	if c.ETLWorkers <= 0 {
		return fmt.Errorf("etl workers must be positive (got %d)", c.ETLWorkers)
	}
	if c.ETLQueueCapacity <= 0 {
		return fmt.Errorf("etl queue capacity must be positive (got %d)", c.ETLQueueCapacity)
	}
	if c.AnomalyThreshold <= 0 {
		return fmt.Errorf("anomaly threshold must be positive (got %v)", c.AnomalyThreshold)
	}
	switch c.ArchiveBackend {
	case "local", "s3", "off":
	default:
		return fmt.Errorf("archive backend must be local, s3 or off (got %q)", c.ArchiveBackend)
	}
	if c.ArchiveBackend == "s3" && strings.TrimSpace(c.ArchiveBucket) == "" {
		return fmt.Errorf("archive bucket required for s3 backend")
	}
	if c.RateLimitEnabled {
		if c.RateLimitGlobalRPS <= 0 || c.RateLimitGlobalBurst <= 0 {
			return fmt.Errorf("global rate limit must be positive (got rps=%v burst=%d)",
				c.RateLimitGlobalRPS, c.RateLimitGlobalBurst)
		}
		if c.RateLimitPerIPRPS <= 0 || c.RateLimitPerIPBurst <= 0 {
			return fmt.Errorf("per-ip rate limit must be positive (got rps=%v burst=%d)",
				c.RateLimitPerIPRPS, c.RateLimitPerIPBurst)
		}
	}
	switch c.Tracing.Exporter {
	case "grpc", "http":
	default:
		return fmt.Errorf("tracing exporter must be grpc or http (got %q)", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample rate must be within [0,1] (got %v)", c.Tracing.SampleRate)
	}
	return nil
}

func stringOr(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func int64Or(v, def int64) int64 {
	if v > 0 {
		return v
	}
	return def
}

func floatOr(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func durationOr(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func sliceOr(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}
