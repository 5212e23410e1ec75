package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesScanned     = "virtualenvify.files.scanned"
	metricBytesScanned     = "virtualenvify.bytes.scanned"
	metricReferences       = "virtualenvify.references.found"
	metricExternal         = "virtualenvify.dependencies.external"
	metricClassifyDuration = "virtualenvify.classify.duration.seconds"
	metricPackages         = "virtualenvify.packages.processed"
	metricCommands         = "virtualenvify.commands.total"
	metricCommandDuration  = "virtualenvify.command.duration.seconds"

	attrOp      = "op"
	attrStatus  = "status"
	attrOutcome = "outcome"

	// StatusOK and StatusError label command outcomes.
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBuckets spans quick scans of a few files up to slow installs.
var durationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}

// RunMetrics holds the instruments recorded by one invocation.
type RunMetrics struct {
	files            metric.Int64Counter
	bytes            metric.Int64Counter
	references       metric.Int64Counter
	external         metric.Int64Counter
	classifyDuration metric.Float64Histogram
	packages         metric.Int64Counter
	commands         metric.Int64Counter
	commandDuration  metric.Float64Histogram
}

// NewRunMetrics creates the instruments on mt.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	b := newMetricBuilder(mt)

	m := &RunMetrics{
		files:      b.counter(metricFilesScanned, "Source files scanned for imports", "{file}"),
		bytes:      b.counter(metricBytesScanned, "Bytes of source scanned", "By"),
		references: b.counter(metricReferences, "Distinct module references found", "{module}"),
		external:   b.counter(metricExternal, "External dependencies detected", "{module}"),
		classifyDuration: b.histogram(metricClassifyDuration,
			"Time spent classifying a tree", "s", durationBuckets...),
		packages: b.counter(metricPackages, "Packages processed by outcome", "{package}"),
		commands: b.counter(metricCommands, "Commands and tool calls handled", "{command}"),
		commandDuration: b.histogram(metricCommandDuration,
			"Command duration in seconds", "s", durationBuckets...),
	}

	if b.err != nil {
		return nil, fmt.Errorf("run metrics: %w", b.err)
	}

	return m, nil
}

// RecordScan records the totals of one classification.
func (m *RunMetrics) RecordScan(ctx context.Context, files int, bytes int64, references, external int, elapsed time.Duration) {
	m.files.Add(ctx, int64(files))
	m.bytes.Add(ctx, bytes)
	m.references.Add(ctx, int64(references))
	m.external.Add(ctx, int64(external))
	m.classifyDuration.Record(ctx, elapsed.Seconds())
}

// RecordInstall counts one package with its installation outcome.
func (m *RunMetrics) RecordInstall(ctx context.Context, outcome string) {
	m.packages.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

// RecordCommand records a finished command or MCP tool call.
func (m *RunMetrics) RecordCommand(ctx context.Context, op string, err error, elapsed time.Duration) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}

	attrs := metric.WithAttributes(attribute.String(attrOp, op), attribute.String(attrStatus, status))

	m.commands.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, elapsed.Seconds(), attrs)
}
