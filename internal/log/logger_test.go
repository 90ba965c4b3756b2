// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func captureBase(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := base
	base = zerolog.New(&buf).With().Timestamp().Str("service", "xl2wh").Logger()
	t.Cleanup(func() { base = old })
	return &buf
}

func TestWithComponentAddsField(t *testing.T) {
	buf := captureBase(t)

	WithComponent("ingest").Info().Str(FieldEvent, "batch.created").Msg("created")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["component"] != "ingest" {
		t.Errorf("expected component=ingest, got %v", entry["component"])
	}
	if entry["event"] != "batch.created" {
		t.Errorf("expected event=batch.created, got %v", entry["event"])
	}
	if entry["service"] != "xl2wh" {
		t.Errorf("expected service=xl2wh, got %v", entry["service"])
	}
}

func TestDeriveAddsFields(t *testing.T) {
	buf := captureBase(t)

	l := Derive(func(ctx *zerolog.Context) {
		*ctx = ctx.Str(FieldTable, "parts_sales")
	})
	l.Info().Msg("derived")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["table"] != "parts_sales" {
		t.Errorf("expected table=parts_sales, got %v", entry["table"])
	}
}

func TestEnvLevelPrecedence(t *testing.T) {
	t.Setenv("XL2WH_LOG_LEVEL", "warn")
	t.Setenv("LOG_LEVEL", "debug")
	if got := envLevel(); got != "warn" {
		t.Errorf("expected prefixed variable to win, got %q", got)
	}

	t.Setenv("XL2WH_LOG_LEVEL", "")
	if got := envLevel(); got != "debug" {
		t.Errorf("expected LOG_LEVEL fallback, got %q", got)
	}
}
