// Package observability sets up tracing, metrics and structured logging for
// the command line and MCP modes of virtualenvify.
package observability

import (
	"io"
	"log/slog"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a one-shot command.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server.
	ModeMCP AppMode = "mcp"
)

const (
	defaultServiceName        = "virtualenvify"
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Mode           AppMode

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio applies when positive; otherwise every root span is sampled.
	SampleRatio float64

	// MetricsFile receives a Prometheus text exposition of the run metrics
	// on shutdown. Empty disables it.
	MetricsFile string

	LogLevel slog.Level
	LogJSON  bool
	// LogWriter receives log output. Nil uses stderr.
	LogWriter io.Writer

	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
