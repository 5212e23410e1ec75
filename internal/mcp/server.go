// Package mcp serves the dependency-discovery engine as Model Context
// Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/classify"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/stdlib"
)

const (
	serverName    = "virtualenvify"
	serverVersion = "1.0.0"

	toolCount     = 2
	mcpSpanPrefix = "mcp."
)

// ServerDeps holds injectable dependencies. Zero-value fields fall back to
// defaults or disable the feature.
type ServerDeps struct {
	// Catalog supplies the standard-library names. Nil probes the default
	// interpreter on first use.
	Catalog stdlib.Catalog
	// Options tunes tree classification.
	Options classify.Options
	Logger  *slog.Logger
	// Metrics is optional.
	Metrics *observability.RunMetrics
	// Tracer is optional.
	Tracer trace.Tracer
	// Version is reported to clients.
	Version string
}

// Server wraps the MCP SDK server with the virtualenvify tools.
type Server struct {
	inner      *mcpsdk.Server
	classifier *classify.Classifier
	metrics    *observability.RunMetrics
	tracer     trace.Tracer

	mu    sync.RWMutex
	tools []string
}

// NewServer creates a server with every tool registered. One classifier, and
// so one memoised catalog, is shared by all tool calls.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	version := deps.Version
	if version == "" {
		version = serverVersion
	}

	catalog := deps.Catalog
	if catalog == nil {
		catalog = stdlib.NewHostCatalog(stdlib.NewInterpreterProber(nil, ""), deps.Logger)
	}

	srv := &Server{
		inner:      mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, opts),
		classifier: classify.New(catalog, deps.Options, deps.Logger),
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		tools:      make([]string, 0, toolCount),
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := slices.Clone(s.tools)
	slices.Sort(names)

	return names
}

// Run serves on stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves on transport.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: ToolNameScan, Description: scanToolDescription},
		withMetrics(s.metrics, ToolNameScan, withTracing(s.tracer, ToolNameScan, handleScan)))
	s.trackTool(ToolNameScan)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: ToolNameFind, Description: findToolDescription},
		withMetrics(s.metrics, ToolNameFind, withTracing(s.tracer, ToolNameFind, s.handleFind)))
	s.trackTool(ToolNameFind)
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// withTracing opens a server span per tool call.
func withTracing[In any](
	tracer trace.Tracer,
	tool string,
	next func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return next
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+tool,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", tool)),
		)
		defer span.End()

		return next(ctx, req, in)
	}
}

// withMetrics records one command measurement per tool call. Tool-level
// failures count as errors.
func withMetrics[In any](
	metrics *observability.RunMetrics,
	tool string,
	next func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return next
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		result, out, err := next(ctx, req, in)

		recorded := err
		if recorded == nil && result != nil && result.IsError {
			recorded = errToolFailed
		}

		metrics.RecordCommand(ctx, mcpSpanPrefix+tool, recorded, time.Since(start))

		return result, out, err
	}
}
