package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
)

var errCommandFailed = errors.New("boom")

func setupRunMetrics(t *testing.T) (*observability.RunMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := observability.NewRunMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	for i := range rm.ScopeMetrics {
		for j := range rm.ScopeMetrics[i].Metrics {
			if rm.ScopeMetrics[i].Metrics[j].Name == name {
				return &rm.ScopeMetrics[i].Metrics[j]
			}
		}
	}

	return nil
}

func TestRunMetrics_RecordScan(t *testing.T) {
	t.Parallel()

	m, reader := setupRunMetrics(t)

	m.RecordScan(context.Background(), 4, 2048, 9, 3, 20*time.Millisecond)

	files := findMetric(t, reader, "virtualenvify.files.scanned")
	require.NotNil(t, files)

	sum, ok := files.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(4), sum.DataPoints[0].Value)

	hist := findMetric(t, reader, "virtualenvify.classify.duration.seconds")
	require.NotNil(t, hist)
}

func TestRunMetrics_RecordCommandStatus(t *testing.T) {
	t.Parallel()

	m, reader := setupRunMetrics(t)
	ctx := context.Background()

	m.RecordCommand(ctx, "scan", nil, time.Millisecond)
	m.RecordCommand(ctx, "scan", errCommandFailed, time.Millisecond)

	commands := findMetric(t, reader, "virtualenvify.commands.total")
	require.NotNil(t, commands)

	sum, ok := commands.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 2)
}
