package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTracingNone(t *testing.T) {
	tp, err := SetupTracing(context.Background(), TracingConfig{
		Exporter:    ExporterNone,
		ServiceName: "stratum-test",
	})

	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, ShutdownTracing(context.Background(), tp))
}

func TestSetupTracingConsole(t *testing.T) {
	tp, err := SetupTracing(context.Background(), TracingConfig{
		Exporter:    ExporterConsole,
		ServiceName: "stratum-test",
	})

	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, ShutdownTracing(context.Background(), tp))
}

func TestSetupTracingUnsupportedExporter(t *testing.T) {
	_, err := SetupTracing(context.Background(), TracingConfig{Exporter: "jaeger"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported trace exporter")
}

func TestShutdownTracingNilProvider(t *testing.T) {
	assert.NoError(t, ShutdownTracing(context.Background(), nil))
}
