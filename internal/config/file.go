// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML overlay shape. Every field is optional; unset fields
// fall through to the built-in defaults and ENV always wins over the file.
type FileConfig struct {
	DataDir             string        `yaml:"dataDir"`
	DBPath              string        `yaml:"dbPath"`
	CORSOrigins         []string      `yaml:"corsOrigins"`
	MaxUploadBytes      int64         `yaml:"maxUploadBytes"`
	UploadParallelism   int           `yaml:"uploadParallelism"`
	AllowedFactoryCodes []string      `yaml:"allowedFactoryCodes"`
	AllowedIndicators   []string      `yaml:"allowedIndicators"`
	AnomalyThreshold    float64       `yaml:"anomalyThreshold"`
	ETLAuto             bool          `yaml:"etlAuto"`
	ETLWorkers          int           `yaml:"etlWorkers"`
	ETLQueueCapacity    int           `yaml:"etlQueueCapacity"`
	SweepInterval       time.Duration `yaml:"sweepInterval"`
	BatchStaleAfter     time.Duration `yaml:"batchStaleAfter"`
	KPIDefinitions      string        `yaml:"kpiDefinitions"`
	RedisAddr           string        `yaml:"redisAddr"`
	AnalysisCacheTTL    time.Duration `yaml:"analysisCacheTTL"`
	ArchiveBackend      string        `yaml:"archiveBackend"`
	ArchivePath         string        `yaml:"archivePath"`
	ArchiveBucket       string        `yaml:"archiveBucket"`
	ArchivePrefix       string        `yaml:"archivePrefix"`
	AWSRegion           string        `yaml:"awsRegion"`
	DedupPath           string        `yaml:"dedupPath"`
	RateLimitEnabled    *bool         `yaml:"rateLimitEnabled"`
	TrustedProxies      []string      `yaml:"trustedProxies"`
	MetricsEnabled      *bool         `yaml:"metricsEnabled"`
	MetricsAddr         string        `yaml:"metricsAddr"`
	TLSCert             string        `yaml:"tlsCert"`
	TLSKey              string        `yaml:"tlsKey"`

	Server ServerFileConfig `yaml:"server"`
}

// ServerFileConfig mirrors the HTTP server tunables in the YAML overlay.
type ServerFileConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxHeaderBytes  int           `yaml:"maxHeaderBytes"`
	MaxConns        int           `yaml:"maxConns"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoadFile reads and decodes the YAML overlay. Unknown keys are rejected so
// typos surface at startup instead of silently using defaults.
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return FileConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}
