package common

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	EXPORTER_NONE   = "none"
	EXPORTER_STDOUT = "stdout"
)

var ErrUnknownExporter = errors.New("unknown telemetry exporter")

type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	// TraceExporter and MetricExporter are "none" or "stdout".
	TraceExporter  string
	MetricExporter string
	// Writer receives stdout exporter output; os.Stderr when nil.
	Writer io.Writer
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		ServiceName:    "coinem",
		ServiceVersion: "0.1.0",
		TraceExporter:  EXPORTER_NONE,
		MetricExporter: EXPORTER_NONE,
	}
}

// InitTelemetry installs global tracer and meter providers according to cfg.
// With both exporters set to "none" the otel no-op providers stay in place.
// The returned shutdown flushes and stops whatever was installed.
func InitTelemetry(ctx context.Context, cfg TelemetryConfig) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var firstErr error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	switch cfg.TraceExporter {
	case "", EXPORTER_NONE:
	case EXPORTER_STDOUT:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, errors.Wrap(err, "create stdout trace exporter")
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	default:
		return nil, errors.Wrapf(ErrUnknownExporter, "traces: %s", cfg.TraceExporter)
	}

	switch cfg.MetricExporter {
	case "", EXPORTER_NONE:
	case EXPORTER_STDOUT:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
		if err != nil {
			_ = shutdown(ctx)
			return nil, errors.Wrap(err, "create stdout metric exporter")
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		)
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	default:
		_ = shutdown(ctx)
		return nil, errors.Wrapf(ErrUnknownExporter, "metrics: %s", cfg.MetricExporter)
	}

	GetLogger(MODULE_TELEMETRY).Debugf("telemetry initialised, traces=%s metrics=%s",
		cfg.TraceExporter, cfg.MetricExporter)

	return shutdown, nil
}
