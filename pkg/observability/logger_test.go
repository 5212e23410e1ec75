package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
)

func logOnce(t *testing.T, mode observability.AppMode, log func(*slog.Logger)) map[string]any {
	t.Helper()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log(slog.New(observability.NewTracingHandler(inner, "virtualenvify", mode)))

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	record := logOnce(t, observability.ModeCLI, func(l *slog.Logger) {
		l.InfoContext(ctx, "scanned file")
	})

	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "virtualenvify", record["service"])
	assert.Equal(t, "cli", record["mode"])
}

func TestTracingHandler_NoSpan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	record := logOnce(t, observability.ModeMCP, func(l *slog.Logger) {
		l.InfoContext(ctx, "no span")
	})

	assert.NotContains(t, record, "trace_id")
	assert.Equal(t, "mcp", record["mode"])
}

func TestTracingHandler_GroupKeepsServiceOnTop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	record := logOnce(t, observability.ModeCLI, func(l *slog.Logger) {
		l.With(slog.String("root", "/srv/app")).WithGroup("scan").InfoContext(ctx, "done", slog.Int("files", 3))
	})

	assert.Equal(t, "virtualenvify", record["service"])
	assert.Equal(t, "/srv/app", record["root"])

	scan, ok := record["scan"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 3, scan["files"], 0)
}
