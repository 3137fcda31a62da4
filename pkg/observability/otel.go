package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const exporterDialTimeout = 10 * time.Second

// OTelConfig describes the EduGate process to OpenTelemetry. Exporting is
// opt-in: with no Endpoint, spans are still recorded so request logs carry
// trace ids, but nothing leaves the process.
type OTelConfig struct {
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	// Environment is the deployment environment (development, production)
	Environment string
	// InstanceID distinguishes API replicas; the host name when empty
	InstanceID string
	// SampleRatio of new root traces to keep. Zero or >= 1 keeps all.
	SampleRatio float64
}

// Telemetry owns the installed providers. MeterProvider is nil when no
// collector is configured.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	Exporting      bool
}

// InitOTel installs the global tracer provider, meter provider and W3C
// propagators for the API process
func InitOTel(ctx context.Context, cfg OTelConfig, logger *Logger) (*Telemetry, error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRatio)),
	}
	t := &Telemetry{}

	if cfg.Endpoint != "" {
		dial := []grpc.DialOption{}
		if cfg.Insecure {
			dial = append(dial, grpc.WithTransportCredentials(insecure.NewCredentials()))
		}
		dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
		defer cancel()

		spans, err := otlptracegrpc.New(dialCtx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(dial...),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", err)
		}
		metrics, err := otlpmetricgrpc.New(dialCtx,
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithDialOption(dial...),
		)
		if err != nil {
			_ = spans.Shutdown(ctx)
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}

		tpOpts = append(tpOpts, sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(5*time.Second)))
		t.MeterProvider = metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(metrics, metric.WithInterval(30*time.Second))),
		)
		otel.SetMeterProvider(t.MeterProvider)
		t.Exporting = true
	}

	t.TracerProvider = sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(t.TracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	fields := map[string]interface{}{
		"environment":  cfg.Environment,
		"sample_ratio": cfg.SampleRatio,
	}
	if t.Exporting {
		fields["endpoint"] = cfg.Endpoint
		logger.WithFields(fields).Info("OpenTelemetry exporting to collector")
	} else {
		logger.WithFields(fields).Info("OpenTelemetry tracing locally, no collector configured")
	}
	return t, nil
}

func newResource(ctx context.Context, cfg OTelConfig) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
			semconv.ServiceInstanceIDKey.String(instanceID(cfg.InstanceID)),
		),
	)
}

func instanceID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}

func newSampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Shutdown flushes pending spans and metrics. Safe on a nil receiver.
func (t *Telemetry) Shutdown(ctx context.Context, logger *Logger) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if t.MeterProvider != nil {
		if err := t.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.WithError(err).Error("OpenTelemetry shutdown failed")
		return err
	}
	return nil
}

// UpdateLoggerWithTraceContext adds trace and span IDs when ctx carries a recording span
func UpdateLoggerWithTraceContext(ctx context.Context, logger *Logger) *Logger {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return logger
	}

	spanCtx := span.SpanContext()
	return logger.WithFields(map[string]interface{}{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
