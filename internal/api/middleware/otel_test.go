// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestExtractTraceContext_NoSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)

	traceID, spanID := ExtractTraceContext(req)
	if traceID != "" || spanID != "" {
		t.Fatalf("expected empty ids without a span, got %q %q", traceID, spanID)
	}

	// AddSpanAttributes on a noop span must not panic.
	AddSpanAttributes(req, attribute.String("test.key", "value"))
}

func TestExtractAndAddSpanAttributes(t *testing.T) {
	// Use a real SDK provider, not the global noop default.
	tp := sdktrace.NewTracerProvider()
	tr := tp.Tracer("test-tracer")

	ctx, span := tr.Start(context.Background(), "test-span")
	defer span.End()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil).WithContext(ctx)

	traceID, spanID := ExtractTraceContext(req)
	if traceID == "" || spanID == "" || traceID == "00000000000000000000000000000000" {
		t.Fatalf("expected valid trace/span ids, got %q %q", traceID, spanID)
	}

	AddSpanAttributes(req, attribute.String("test.key", "value"))
	if got := SpanFromContext(req).SpanContext().TraceID().String(); got != traceID {
		t.Fatalf("span context mismatch, expected trace id %s got %s", traceID, got)
	}
}
