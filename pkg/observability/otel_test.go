package observability

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTelWithoutCollector(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	telemetry, err := InitOTel(context.Background(), OTelConfig{
		ServiceName: "edugate",
		Environment: "development",
	}, logger)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer telemetry.Shutdown(context.Background(), logger)

	if telemetry.Exporting {
		t.Error("Expected no export without an endpoint")
	}
	if telemetry.MeterProvider != nil {
		t.Error("Expected no meter provider without an endpoint")
	}
	if !strings.Contains(buf.String(), "no collector configured") {
		t.Errorf("Expected local tracing log line, got %q", buf.String())
	}

	_, span := otel.Tracer("edugate/test").Start(context.Background(), "customers.list")
	defer span.End()
	if !span.IsRecording() {
		t.Error("Expected spans to record so logs carry trace ids")
	}
}

func TestTelemetryShutdownNilSafe(t *testing.T) {
	var telemetry *Telemetry
	if err := telemetry.Shutdown(context.Background(), NewLogger(ErrorLevel, &bytes.Buffer{})); err != nil {
		t.Errorf("Expected nil-safe shutdown, got %v", err)
	}
}

func TestNewResourceDescribesDeployment(t *testing.T) {
	res, err := newResource(context.Background(), OTelConfig{
		ServiceName:    "edugate",
		ServiceVersion: "2.3.0",
		Environment:    "production",
		InstanceID:     "api-2",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := map[attribute.Key]string{
		"service.name":           "edugate",
		"service.version":        "2.3.0",
		"deployment.environment": "production",
		"service.instance.id":    "api-2",
	}
	for key, expected := range want {
		got, ok := res.Set().Value(key)
		if !ok {
			t.Errorf("Expected attribute %s", key)
			continue
		}
		if got.AsString() != expected {
			t.Errorf("Expected %s=%q, got %q", key, expected, got.AsString())
		}
	}
}

func TestInstanceIDFallsBackToHostname(t *testing.T) {
	if got := instanceID("api-1"); got != "api-1" {
		t.Errorf("Expected configured id, got %q", got)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		t.Skip("host name unavailable")
	}
	if got := instanceID(""); got != host {
		t.Errorf("Expected host name %q, got %q", host, got)
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := newSampler(tt.ratio).Description(); !strings.Contains(got, tt.want) {
			t.Errorf("ratio %v: expected sampler %q, got %q", tt.ratio, tt.want, got)
		}
	}
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	if got := UpdateLoggerWithTraceContext(context.Background(), logger); got != logger {
		t.Error("Expected unchanged logger without a span")
	}

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	UpdateLoggerWithTraceContext(ctx, logger).Info("traced")
	if !bytes.Contains(buf.Bytes(), []byte(span.SpanContext().TraceID().String())) {
		t.Errorf("Expected trace id in output, got %q", buf.String())
	}
}
