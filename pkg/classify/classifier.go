// Package classify walks a project tree, scans every Python source file for
// imports and separates external dependencies from standard-library and
// project-local modules.
package classify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/src-d/enry/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/modset"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/scanner"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/stdlib"
)

const tracerName = "virtualenvify/classify"

// Sentinel errors.
var (
	// ErrRootNotFound is returned when the directory to classify does not exist.
	ErrRootNotFound = errors.New("root directory not found")
	// ErrRootNotDirectory is returned when the root is not a directory.
	ErrRootNotDirectory = errors.New("root is not a directory")
	// ErrCatalog is returned when the standard-library catalog is unavailable.
	ErrCatalog = errors.New("standard library catalog unavailable")
)

// Options tunes the tree walk.
type Options struct {
	// Extensions lists the file extensions treated as source files.
	Extensions []string
	// PackageMarker is the file name that makes a directory a package.
	PackageMarker string
	// MaxFileSize skips larger files when positive.
	MaxFileSize int64
	// SkipVendored prunes paths that enry recognises as vendored code.
	SkipVendored bool
}

// DefaultOptions returns the options for a plain Python project.
func DefaultOptions() Options {
	return Options{
		Extensions:    []string{".py"},
		PackageMarker: stdlib.PackageMarker,
	}
}

// Result is the outcome of one classification.
type Result struct {
	Root string `json:"root" yaml:"root"`
	// External holds the names that are neither standard nor local.
	External modset.Set `json:"-" yaml:"-"`
	// References holds every name imported anywhere in the tree.
	References modset.Set `json:"-" yaml:"-"`
	// Local holds the names of the project's own modules and packages.
	Local modset.Set `json:"-" yaml:"-"`
	// Trace maps each reference to the line that last produced it.
	Trace       scanner.Trace `json:"-"           yaml:"-"`
	Diagnostics []Diagnostic  `json:"diagnostics" yaml:"diagnostics"`

	FilesScanned int           `json:"files_scanned" yaml:"files_scanned"`
	BytesScanned int64         `json:"bytes_scanned" yaml:"bytes_scanned"`
	Duration     time.Duration `json:"-"             yaml:"-"`
}

func newResult(root string) *Result {
	return &Result{
		Root:       root,
		References: modset.New(),
		Local:      modset.New(),
		Trace:      scanner.Trace{},
	}
}

// Classifier partitions the imports of a tree.
type Classifier struct {
	catalog stdlib.Catalog
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates a classifier that subtracts the names of catalog.
func New(catalog stdlib.Catalog, opts Options, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultOptions().Extensions
	}

	if opts.PackageMarker == "" {
		opts.PackageMarker = stdlib.PackageMarker
	}

	return &Classifier{
		catalog: catalog,
		opts:    opts,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// Classify walks root and returns its external dependencies. Unreadable
// entries are recorded as diagnostics; a missing root is an error.
func (c *Classifier) Classify(ctx context.Context, root string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "classify.tree", trace.WithAttributes(attribute.String("classify.root", root)))
	defer span.End()

	start := time.Now()

	abs, walkRoot, err := checkRoot(root)
	if err != nil {
		return nil, err
	}

	std, err := c.catalog.Builtins(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}

	res := newResult(abs)

	err = filepath.WalkDir(walkRoot, func(path string, entry fs.DirEntry, walkErr error) error {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return ctxErr
		}

		if walkErr != nil {
			c.diagnose(ctx, res, unreadableCode(entry), path, walkErr)

			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if entry.IsDir() {
			if path != walkRoot && c.opts.SkipVendored && c.isVendored(walkRoot, path) {
				c.logger.DebugContext(ctx, "skipping vendored directory", "path", path)

				return fs.SkipDir
			}

			return nil
		}

		c.visitFile(ctx, res, path, entry)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", walkRoot, err)
	}

	res.External = res.References.Subtract(std, res.Local)
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("classify.files", res.FilesScanned),
		attribute.Int("classify.references", res.References.Len()),
		attribute.Int("classify.external", res.External.Len()),
	)

	c.logger.DebugContext(ctx, "tree classified",
		"root", abs,
		"files", res.FilesScanned,
		"references", res.References.Len(),
		"local", res.Local.Len(),
		"external", res.External.Len(),
		"diagnostics", len(res.Diagnostics))

	return res, nil
}

// checkRoot returns the absolute root and the symlink-free directory to walk.
// WalkDir does not follow a symlinked root, so it is resolved first.
func checkRoot(root string) (string, string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", root, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", root, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", "", fmt.Errorf("stat %s: %w", root, err)
	}

	if !info.IsDir() {
		return "", "", fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}

	return abs, resolved, nil
}

func (c *Classifier) visitFile(ctx context.Context, res *Result, path string, entry fs.DirEntry) {
	name := entry.Name()

	if name == c.opts.PackageMarker {
		res.Local.Add(filepath.Base(filepath.Dir(path)))
	}

	stem, ok := c.sourceStem(name)
	if !ok {
		return
	}

	res.Local.Add(stem)

	if c.opts.MaxFileSize > 0 {
		info, err := entry.Info()
		if err == nil && info.Size() > c.opts.MaxFileSize {
			c.diagnose(ctx, res, CodeFileTooLarge, path,
				fmt.Errorf("%d bytes exceeds limit of %d", info.Size(), c.opts.MaxFileSize))

			return
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.diagnose(ctx, res, CodeUnreadableFile, path, err)

		return
	}

	if enry.IsBinary(data) {
		c.diagnose(ctx, res, CodeBinaryFile, path, nil)

		return
	}

	refs := scanner.ScanTraced(string(data), res.Trace)
	res.References.Union(refs)
	res.FilesScanned++
	res.BytesScanned += int64(len(data))

	c.logger.DebugContext(ctx, "scanned file", "path", path, "references", refs.Len())
}

// sourceStem returns the module name of a source file.
func (c *Classifier) sourceStem(name string) (string, bool) {
	ext := filepath.Ext(name)
	if ext == "" || !slices.Contains(c.opts.Extensions, ext) {
		return "", false
	}

	stem := strings.TrimSuffix(name, ext)

	return stem, stem != ""
}

func (c *Classifier) isVendored(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return enry.IsVendor(filepath.ToSlash(rel) + "/")
}

func (c *Classifier) diagnose(ctx context.Context, res *Result, code, path string, cause error) {
	msg := code
	if cause != nil {
		msg = cause.Error()
	}

	res.Diagnostics = append(res.Diagnostics, Diagnostic{Code: code, Path: path, Message: msg, Cause: cause})

	c.logger.WarnContext(ctx, "skipped during scan", "code", code, "path", path, "reason", msg)
}

func unreadableCode(entry fs.DirEntry) string {
	if entry != nil && entry.IsDir() {
		return CodeUnreadableDir
	}

	return CodeUnreadableFile
}
