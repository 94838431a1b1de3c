// Package telemetry wires OpenTelemetry into trackbridge. It is off unless
// TRACKBRIDGE_OTEL_ENABLED=true, in which case every call to the target is
// traced and counted:
//
//	TRACKBRIDGE_OTEL_ENABLED=true     turn telemetry on
//	TRACKBRIDGE_OTEL_STDOUT=true      print spans and metrics on stderr
//	OTEL_EXPORTER_OTLP_ENDPOINT=...  push metrics over OTLP/HTTP (e.g. localhost:4318)
//
// Console output goes to stderr so it never mixes with --json on stdout.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/trackbridge/trackbridge"

// Settings selects the exporters.
type Settings struct {
	Enabled bool

	// Console receives spans and metrics as JSON when non-nil.
	Console io.Writer

	// OTLPEndpoint is a URL or bare host:port for metrics.
	OTLPEndpoint   string
	MetricInterval time.Duration
}

// FromEnv reads Settings from the environment.
func FromEnv() Settings {
	s := Settings{
		Enabled:        os.Getenv("TRACKBRIDGE_OTEL_ENABLED") == "true",
		MetricInterval: 30 * time.Second,
	}
	if os.Getenv("TRACKBRIDGE_OTEL_STDOUT") == "true" {
		s.Console = os.Stderr
	}
	// The metrics-specific variable wins over the shared one.
	s.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if s.OTLPEndpoint == "" {
		s.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return s
}

// Enabled reports whether telemetry is switched on in the environment.
func Enabled() bool {
	return FromEnv().Enabled
}

var shutdownFns []func(context.Context) error

// Init configures the global providers from the environment.
func Init(ctx context.Context, serviceName, version string) error {
	return Setup(ctx, FromEnv(), serviceName, version)
}

// Setup installs providers for s. Disabled settings install no-op providers,
// so instrumented code pays nothing.
func Setup(ctx context.Context, s Settings, serviceName, version string) error {
	if !s.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	if s.Console != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(s.Console))
		if err != nil {
			return fmt.Errorf("telemetry: trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res), sdktrace.WithBatcher(exp))
		otel.SetTracerProvider(tp)
		shutdownFns = append(shutdownFns, tp.Shutdown)
	} else {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
	}

	readers, err := metricReaders(ctx, s)
	if err != nil {
		return err
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return nil
}

func metricReaders(ctx context.Context, s Settings) ([]sdkmetric.Reader, error) {
	interval := s.MetricInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	var readers []sdkmetric.Reader
	if s.Console != nil {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(s.Console))
		if err != nil {
			return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)))
	}
	if s.OTLPEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, s.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)))
	}
	return readers, nil
}

// Tracer returns a tracer from the global provider.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter from the global provider.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and metrics. The command calls it once on
// exit; the returned error joins every provider's failure.
func Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range shutdownFns {
		errs = append(errs, fn(ctx))
	}
	shutdownFns = nil
	return errors.Join(errs...)
}
