package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/classify"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/scanner"
)

// Tool names.
const (
	ToolNameScan = "scan_imports"
	ToolNameFind = "find_dependencies"
)

// MaxCodeInputBytes limits inline source passed to scan_imports.
const MaxCodeInputBytes = 1 << 20

// Sentinel errors for tool input validation.
var (
	ErrEmptyCode       = errors.New("code parameter is required and must not be empty")
	ErrCodeTooLarge    = errors.New("code input exceeds maximum size")
	ErrEmptyPath       = errors.New("path parameter is required and must not be empty")
	ErrPathNotAbsolute = errors.New("path must be an absolute path")

	errToolFailed = errors.New("tool call failed")
)

const (
	scanToolDescription = "Scan Python source text for top-level import statements. " +
		"Returns the sorted set of imported top-level module names."

	findToolDescription = "Find the external dependencies of a Python project directory: " +
		"every imported module that is neither part of the standard library nor defined in the project."
)

// ScanInput is the input schema for scan_imports.
type ScanInput struct {
	Code  string `json:"code"            jsonschema:"Python source text"`
	Debug bool   `json:"debug,omitempty" jsonschema:"also return the line that produced each module"`
}

// FindInput is the input schema for find_dependencies.
type FindInput struct {
	Path  string `json:"path"            jsonschema:"absolute path of the project root"`
	Debug bool   `json:"debug,omitempty" jsonschema:"also return the line that produced each module"`
}

// ScanOutput is returned by scan_imports.
type ScanOutput struct {
	Modules []string          `json:"modules"`
	Trace   map[string]string `json:"trace,omitempty"`
}

// FindOutput is returned by find_dependencies.
type FindOutput struct {
	Root         string                `json:"root"`
	External     []string              `json:"external"`
	Local        []string              `json:"local"`
	References   []string              `json:"references"`
	FilesScanned int                   `json:"files_scanned"`
	Diagnostics  []classify.Diagnostic `json:"diagnostics,omitempty"`
	Trace        map[string]string     `json:"trace,omitempty"`
}

// ToolOutput is the structured output of every tool.
type ToolOutput struct {
	Data any `json:"data"`
}

func handleScan(_ context.Context, _ *mcpsdk.CallToolRequest, in ScanInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if in.Code == "" {
		return errorResult(ErrEmptyCode)
	}

	if len(in.Code) > MaxCodeInputBytes {
		return errorResult(fmt.Errorf("%w: %d bytes (max %d)", ErrCodeTooLarge, len(in.Code), MaxCodeInputBytes))
	}

	var trace scanner.Trace
	if in.Debug {
		trace = scanner.Trace{}
	}

	modules := scanner.ScanTraced(in.Code, trace)

	return jsonResult(ScanOutput{Modules: modules.Sorted(), Trace: trace})
}

func (s *Server) handleFind(ctx context.Context, _ *mcpsdk.CallToolRequest, in FindInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if in.Path == "" {
		return errorResult(ErrEmptyPath)
	}

	if !filepath.IsAbs(in.Path) {
		return errorResult(fmt.Errorf("%w: %s", ErrPathNotAbsolute, in.Path))
	}

	res, err := s.classifier.Classify(ctx, in.Path)
	if err != nil {
		return errorResult(err)
	}

	if s.metrics != nil {
		s.metrics.RecordScan(ctx, res.FilesScanned, res.BytesScanned, res.References.Len(), res.External.Len(), res.Duration)
	}

	out := FindOutput{
		Root:         res.Root,
		External:     res.External.Sorted(),
		Local:        res.Local.Sorted(),
		References:   res.References.Sorted(),
		FilesScanned: res.FilesScanned,
		Diagnostics:  res.Diagnostics,
	}

	if in.Debug {
		out.Trace = res.Trace
	}

	return jsonResult(out)
}

func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}, ToolOutput{}, nil
}

func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, ToolOutput{Data: value}, nil
}
