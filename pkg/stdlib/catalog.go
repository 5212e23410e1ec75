// Package stdlib builds the set of module names that ship with the Python
// runtime, so that they are never mistaken for installable dependencies.
package stdlib

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/modset"
)

// Catalog yields the standard-library set. Implementations may compute it
// lazily; the returned set must not be modified by callers.
type Catalog interface {
	Builtins(ctx context.Context) (modset.Set, error)
}

// Static is a fixed catalog, used where the host interpreter must not be
// consulted.
type Static modset.Set

// NewStatic creates a fixed catalog of names.
func NewStatic(names ...string) Static {
	return Static(modset.New(names...))
}

// Builtins returns a copy of the fixed set.
func (s Static) Builtins(_ context.Context) (modset.Set, error) {
	return modset.Set(s).Clone(), nil
}

// HostCatalog derives the catalog from the host interpreter layout. The
// first successful result is kept for the lifetime of the catalog; failures
// are not cached so a later call may retry.
type HostCatalog struct {
	prober Prober
	logger *slog.Logger

	mu     sync.Mutex
	layout *Layout
	names  modset.Set
}

// NewHostCatalog creates a catalog that probes the interpreter on first use.
func NewHostCatalog(prober Prober, logger *slog.Logger) *HostCatalog {
	if logger == nil {
		logger = slog.Default()
	}

	return &HostCatalog{prober: prober, logger: logger}
}

// Builtins returns the memoised standard-library set.
func (c *HostCatalog) Builtins(ctx context.Context) (modset.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.names != nil {
		return c.names, nil
	}

	layout, err := c.loadLayout(ctx)
	if err != nil {
		return nil, err
	}

	names, err := Collect(layout)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "standard library catalogued",
		"interpreter", layout.Executable, "version", layout.Version, "modules", names.Len())

	c.names = names

	return names, nil
}

// Layout returns the memoised interpreter layout.
func (c *HostCatalog) Layout(ctx context.Context) (*Layout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loadLayout(ctx)
}

func (c *HostCatalog) loadLayout(ctx context.Context) (*Layout, error) {
	if c.layout != nil {
		return c.layout, nil
	}

	layout, err := c.prober.Probe(ctx)
	if err != nil {
		return nil, err
	}

	c.layout = layout

	return layout, nil
}
