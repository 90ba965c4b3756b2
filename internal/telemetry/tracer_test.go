// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestNewProviderNoop(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "disabled",
			cfg:  Config{Enabled: false, ServiceName: "test-service", ExporterType: "grpc"},
		},
		{
			name: "noop exporter",
			cfg:  Config{Enabled: true, ServiceName: "test-service", ExporterType: "noop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("NewProvider: %v", err)
			}
			if provider.tp != nil {
				t.Error("expected noop provider (tp == nil)")
			}

			_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
			if span.IsRecording() {
				t.Error("expected non-recording span from noop provider")
			}
			span.End()
		})
	}
}

func TestNewProviderInvalidExporter(t *testing.T) {
	cfg := Config{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: "invalid",
	}

	_, err := NewProvider(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for invalid exporter type")
	}

	want := "unsupported exporter type: invalid (supported: grpc, http, noop)"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{name: "full rate", rate: 1.0, want: "AlwaysOnSampler"},
		{name: "above full rate", rate: 2.5, want: "AlwaysOnSampler"},
		{name: "zero rate", rate: 0.0, want: "AlwaysOffSampler"},
		{name: "negative rate", rate: -0.5, want: "AlwaysOffSampler"},
		{name: "fractional rate", rate: 0.25, want: "TraceIDRatioBased"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := samplerFor(tt.rate).Description()
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("samplerFor(%v).Description() = %q, want prefix %q", tt.rate, got, tt.want)
			}
		})
	}
}

func TestShutdownNoopProvider(t *testing.T) {
	provider := &Provider{}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on noop provider: %v", err)
	}

	// A canceled context must not matter when there is nothing to flush.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown with canceled context: %v", err)
	}
}

func TestTracerProducesSpans(t *testing.T) {
	if _, err := NewProvider(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	tracer := Tracer("test-tracer")
	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}

	ctx, span := tracer.Start(context.Background(), "test-span")
	if span == nil {
		t.Fatal("expected non-nil span")
	}
	span.End()

	if trace.SpanFromContext(ctx) == nil {
		t.Error("expected span in context")
	}
}

func TestConcurrentShutdown(t *testing.T) {
	provider := &Provider{}

	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = provider.Shutdown(ctx)
			done <- struct{}{}
		}()
	}

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for concurrent shutdown")
		}
	}
}
