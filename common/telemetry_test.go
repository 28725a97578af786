package common

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTelemetryNone(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), DefaultTelemetryConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTelemetryUnknownExporter(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	cfg.MetricExporter = "prometheus"

	_, err := InitTelemetry(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownExporter))
}

func TestInitTelemetryStdoutTraces(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	cfg := DefaultTelemetryConfig()
	cfg.TraceExporter = EXPORTER_STDOUT
	cfg.Writer = &buf

	shutdown, err := InitTelemetry(context.Background(), cfg)
	require.NoError(t, err)

	_, span := otel.Tracer("coinem.test").Start(context.Background(), "estimate")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "estimate")
}
