// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"testing"
	"time"
)

func TestParseServerConfigDefaults(t *testing.T) {
	clearEnv(t,
		"XL2WH_LISTEN", "XL2WH_SERVER_READ_TIMEOUT", "XL2WH_SERVER_WRITE_TIMEOUT",
		"XL2WH_SERVER_IDLE_TIMEOUT", "XL2WH_SERVER_MAX_HEADER_BYTES",
		"XL2WH_SERVER_MAX_CONNS", "XL2WH_SERVER_SHUTDOWN_TIMEOUT",
	)

	cfg := ParseServerConfig()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.ReadTimeout != 60*time.Second {
		t.Errorf("ReadTimeout = %v, want 60s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 0 {
		t.Errorf("WriteTimeout = %v, want 0", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 120*time.Second {
		t.Errorf("IdleTimeout = %v, want 120s", cfg.IdleTimeout)
	}
	if cfg.MaxHeaderBytes != 1<<20 {
		t.Errorf("MaxHeaderBytes = %d, want 1MB", cfg.MaxHeaderBytes)
	}
	if cfg.MaxConns != 0 {
		t.Errorf("MaxConns = %d, want 0 (unlimited)", cfg.MaxConns)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
}

func TestParseServerConfigEnvOverride(t *testing.T) {
	t.Setenv("XL2WH_LISTEN", ":9999")
	t.Setenv("XL2WH_SERVER_READ_TIMEOUT", "30s")
	t.Setenv("XL2WH_SERVER_MAX_CONNS", "128")

	cfg := ParseServerConfig()
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", cfg.ReadTimeout)
	}
	if cfg.MaxConns != 128 {
		t.Errorf("MaxConns = %d, want 128", cfg.MaxConns)
	}
}

func TestParseServerConfigShutdownFloor(t *testing.T) {
	t.Setenv("XL2WH_SERVER_SHUTDOWN_TIMEOUT", "1s")
	cfg := ParseServerConfig()
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout = %v, want floor of 3s", cfg.ShutdownTimeout)
	}
}

func TestBindListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		listen  string
		bind    string
		want    string
		wantErr bool
	}{
		{name: "no bind", listen: ":8080", bind: "", want: ":8080"},
		{name: "port only", listen: ":8080", bind: "10.0.0.5", want: "10.0.0.5:8080"},
		{name: "explicit host untouched", listen: "127.0.0.1:8080", bind: "10.0.0.5", want: "127.0.0.1:8080"},
		{name: "unknown interface", listen: ":8080", bind: "if:definitely-not-a-nic", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BindListenAddr(tt.listen, tt.bind)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("BindListenAddr = %q, want %q", got, tt.want)
			}
		})
	}
}
