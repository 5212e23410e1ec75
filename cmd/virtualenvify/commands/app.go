// Package commands implements the virtualenvify subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/classify"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/config"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/executor"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/stdlib"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/version"
)

// Globals are the persistent root flags shared by every command.
type Globals struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
	NoColor    bool
}

// Deps are the injectable collaborators of the commands. Zero-value fields
// use production implementations.
type Deps struct {
	Runner    executor.Runner
	Catalog   stdlib.Catalog
	Fs        afero.Fs
	LogWriter io.Writer
}

// app is the per-invocation state built from config and flags.
type app struct {
	cfg       *config.Config
	providers observability.Providers
	runner    executor.Runner
	deps      Deps
	prober    *stdlib.InterpreterProber
	host      *stdlib.HostCatalog
	quiet     bool
	verbose   bool
}

func newApp(g *Globals, deps Deps, mode observability.AppMode) (*app, error) {
	cfg, err := config.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}

	obsCfg := cfg.Observability(mode, version.Version)
	obsCfg.LogWriter = deps.LogWriter

	switch {
	case g.Verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case g.Quiet:
		obsCfg.LogLevel = slog.LevelError
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, err
	}

	if g.NoColor {
		color.NoColor = true //nolint:reassign // fatih/color exposes this global as its toggle.
	}

	runner := deps.Runner
	if runner == nil {
		runner = executor.NewExecRunner()
	}

	return &app{cfg: cfg, providers: providers, runner: runner, deps: deps, quiet: g.Quiet, verbose: g.Verbose}, nil
}

func (a *app) logger() *slog.Logger {
	return a.providers.Logger
}

func (a *app) close() {
	err := a.providers.Shutdown(context.Background())
	if err != nil {
		a.logger().Warn("observability shutdown failed", "error", err)
	}
}

// catalog returns the standard-library catalog for the configured
// interpreter, cached on disk when enabled.
func (a *app) catalog() stdlib.Catalog {
	if a.deps.Catalog != nil {
		return a.deps.Catalog
	}

	logger := a.logger()
	host := a.hostCatalog()

	if !a.cfg.Python.Cache {
		return host
	}

	dir, err := a.cfg.CatalogCacheDir()
	if err != nil {
		logger.Warn("standard library cache disabled", "error", err)

		return host
	}

	key, err := stdlib.InterpreterKey(a.interpreter().Interpreter())
	if err != nil {
		logger.Debug("standard library cache disabled", "error", err)

		return host
	}

	return stdlib.NewCachedCatalog(host, dir, key, logger)
}

func (a *app) interpreter() *stdlib.InterpreterProber {
	if a.prober == nil {
		a.prober = stdlib.NewInterpreterProber(a.runner, a.cfg.Python.Interpreter)
	}

	return a.prober
}

func (a *app) hostCatalog() *stdlib.HostCatalog {
	if a.host == nil {
		a.host = stdlib.NewHostCatalog(a.interpreter(), a.logger())
	}

	return a.host
}

// toolOutput is where external tools stream their output: stderr with
// --verbose, nowhere otherwise.
func (a *app) toolOutput(w io.Writer) io.Writer {
	if a.verbose {
		return w
	}

	return nil
}

// hostSitePackages lists the interpreter's site directories for the copy
// fallback. An injected catalog has no installation behind it.
func (a *app) hostSitePackages(ctx context.Context) []string {
	if a.deps.Catalog != nil || !a.cfg.Install.CopyFallback {
		return nil
	}

	layout, err := a.hostCatalog().Layout(ctx)
	if err != nil {
		a.logger().WarnContext(ctx, "copy fallback disabled", "error", err)

		return nil
	}

	return layout.SitePackages()
}

func (a *app) classifier() *classify.Classifier {
	return classify.New(a.catalog(), a.cfg.ClassifyOptions(), a.logger())
}

// instrument runs fn inside a command span and records its outcome.
func (a *app) instrument(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := a.providers.Tracer.Start(ctx, "command."+op,
		trace.WithAttributes(attribute.String("command", op)))
	defer span.End()

	start := time.Now()

	err := fn(ctx)

	a.providers.Metrics.RecordCommand(ctx, op, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}
