package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/target/memory"
)

func TestWrapTargetDisabledReturnsInner(t *testing.T) {
	t.Setenv("TRACKBRIDGE_OTEL_ENABLED", "")
	repo := memory.New()
	assert.Same(t, repo, WrapTarget(repo))
}

func TestInitDisabledIsNoop(t *testing.T) {
	t.Setenv("TRACKBRIDGE_OTEL_ENABLED", "")
	require.NoError(t, Init(context.Background(), "trackbridge", "test"))
	Shutdown(context.Background())
}

func TestSetupConsoleWritesSpans(t *testing.T) {
	prevT, prevM := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevT)
		otel.SetMeterProvider(prevM)
	})

	var buf bytes.Buffer
	ctx := context.Background()
	require.NoError(t, Setup(ctx, Settings{Enabled: true, Console: &buf}, "trackbridge", "test"))
	_, span := Tracer("").Start(ctx, "github.create_issue")
	span.End()
	require.NoError(t, Shutdown(ctx))
	assert.Contains(t, buf.String(), "github.create_issue")
}

func TestFromEnvPrefersMetricsEndpoint(t *testing.T) {
	t.Setenv("TRACKBRIDGE_OTEL_ENABLED", "true")
	t.Setenv("TRACKBRIDGE_OTEL_STDOUT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "metrics:4318")
	s := FromEnv()
	assert.True(t, s.Enabled)
	assert.Nil(t, s.Console)
	assert.Equal(t, "metrics:4318", s.OTLPEndpoint)
}

func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestInstrumentedTargetCountsCalls(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	ctx := context.Background()
	repo := memory.New()
	wrapped := newInstrumentedTarget(repo)

	_, err := wrapped.GetLabel(ctx, "imported")
	require.True(t, github.IsNotFound(err))
	_, err = wrapped.CreateLabel(ctx, "imported", "FFFFFF")
	require.NoError(t, err)
	issue, err := wrapped.CreateIssue(ctx, github.IssueRequest{Title: "one", Labels: []string{"imported"}})
	require.NoError(t, err)
	require.NoError(t, wrapped.CloseIssue(ctx, issue.Number))
	_, err = wrapped.CreateComment(ctx, issue.Number, "too late")
	require.Error(t, err)
	_, err = wrapped.RateLimit(ctx)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(6), sumCounter(t, rm, "trackbridge.target.calls"))
	assert.Equal(t, int64(1), sumCounter(t, rm, "trackbridge.target.errors"), "label misses are not errors")

	// Calls pass straight through.
	assert.Equal(t, 1, repo.Len())
	assert.Len(t, repo.CallsOf("create_comment"), 1)
}
